// Package ingest sequences one statement ingestion attempt: fingerprint
// check, extraction, metadata consensus, fuzzy duplicate checks, and the
// final transactional commit.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cardlens/analyzer/internal/consensus"
	"github.com/cardlens/analyzer/internal/dedup"
	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/repository"
)

// File is one uploaded file of a batch.
type File struct {
	Name string
	Data []byte
}

// Result reports the outcome of an ingestion attempt or a confirmation.
type Result struct {
	State           domain.CheckState     `json:"state"`
	CheckID         string                `json:"check_id,omitempty"`
	StatementID     int64                 `json:"statement_id,omitempty"`
	Period          string                `json:"period,omitempty"`
	Rejected        []domain.RejectedFile `json:"rejected_files,omitempty"`
	Warnings        []domain.Warning      `json:"warnings,omitempty"`
	Transactions    []domain.Transaction  `json:"transactions,omitempty"`
	PagesFailed     int                   `json:"pages_failed,omitempty"`
	StaleFiltered   int                   `json:"stale_filtered,omitempty"`
	SuggestedIssuer string                `json:"suggested_issuer,omitempty"`
	CutoffDay       int                   `json:"cutoff_day,omitempty"`
}

// Orchestrator drives the reconciliation state machine for one batch:
// CHECKING_FINGERPRINT → CHECKING_FUZZY → AWAITING_CONFIRMATION (optional)
// → COMMITTED, with REJECTED_DUPLICATE and CANCELLED as terminals.
type Orchestrator struct {
	stmts     *repository.StatementRepo
	txns      *repository.TransactionRepo
	index     *dedup.Index
	matcher   *dedup.StatementMatcher
	overlap   *dedup.OverlapDetector
	renderer  PageRenderer
	extractor PageExtractor
	labeler   Labeler
	checks    *CheckStore
	th        Thresholds
	log       zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(
	stmts *repository.StatementRepo,
	txns *repository.TransactionRepo,
	renderer PageRenderer,
	extractor PageExtractor,
	labeler Labeler,
	th Thresholds,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		stmts:     stmts,
		txns:      txns,
		index:     dedup.NewIndex(stmts),
		matcher:   dedup.NewStatementMatcher(stmts, th.StatementTolerance),
		overlap:   dedup.NewOverlapDetector(txns, th.AmountSlack, log),
		renderer:  renderer,
		extractor: extractor,
		labeler:   labeler,
		checks:    NewCheckStore(),
		th:        th,
		log:       log,
		now:       time.Now,
	}
}

// Ingest runs the full check sequence for a batch of uploaded files.
// Byte-identical re-uploads are rejected per file and excluded; fuzzy hits
// park the batch for explicit confirmation; a clean batch commits
// directly. issuer is the caller-supplied label and is never overwritten
// by the extraction suggestion.
func (o *Orchestrator) Ingest(ctx context.Context, issuer string, files []File) (*Result, error) {
	res := &Result{State: domain.StateCheckingFingerprint}

	kept := o.checkFingerprints(files, res)
	if len(kept) == 0 {
		res.State = domain.StateRejectedDuplicate
		return res, nil
	}

	pages, names, hashes := o.extractBatch(ctx, kept, res)

	res.State = domain.StateCheckingFuzzy

	cons := consensus.Reduce(pages)
	res.CutoffDay = cons.CutoffDay
	res.SuggestedIssuer = cons.SuggestedIssuer()
	if issuer == "" {
		issuer = res.SuggestedIssuer
	}

	candidates := o.collectCandidates(pages, issuer, res)
	if len(candidates) == 0 {
		return nil, domain.ErrNoTransactions
	}

	o.applyLabels(ctx, candidates)

	period := estimatePeriod(candidates, o.now())
	res.Period = period
	var total float64
	for i := range candidates {
		if candidates[i].Amount > 0 {
			total += candidates[i].Amount
		}
	}

	// Both checks are pure reads against the same storage snapshot, so
	// they run concurrently with no ordering between them.
	var (
		similar []domain.MatchCandidate
		overlap domain.OverlapResult
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		similar, err = o.matcher.FindSimilar(issuer, period, total)
		if err != nil {
			// A matcher failure means no statement-level signal, not a
			// dead batch.
			o.log.Warn().Err(err).Str("period", period).Msg("statement match failed")
		}
	}()
	go func() {
		defer wg.Done()
		overlap = o.overlap.FindOverlap(candidates)
	}()
	wg.Wait()

	for _, c := range similar {
		res.Warnings = append(res.Warnings, statementWarning(c))
	}
	if overlap.OverlapRatio >= o.th.SoftOverlapRatio {
		res.Warnings = append(res.Warnings, overlapWarning(overlap))
	}

	if len(res.Warnings) > 0 {
		check := &pendingCheck{
			ID:           uuid.NewString(),
			Issuer:       issuer,
			Filenames:    names,
			FileHashes:   hashes,
			CutoffDay:    cons.CutoffDay,
			Transactions: candidates,
			Warnings:     res.Warnings,
			CreatedAt:    o.now(),
		}
		o.checks.Put(check)
		res.State = domain.StateAwaitingConfirmation
		res.CheckID = check.ID
		res.Transactions = candidates
		o.log.Info().Str("check_id", check.ID).Int("warnings", len(res.Warnings)).
			Msg("batch parked awaiting confirmation")
		return res, nil
	}

	stmtID, err := o.commit(issuer, names, hashes, cons.CutoffDay, candidates)
	if err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	res.State = domain.StateCommitted
	res.StatementID = stmtID
	res.Transactions = candidates
	return res, nil
}

// Confirm commits a batch previously parked in AWAITING_CONFIRMATION. On a
// storage failure the check is restored so the caller can retry; no
// partial rows survive either way.
func (o *Orchestrator) Confirm(ctx context.Context, checkID string) (*Result, error) {
	check, err := o.checks.Take(checkID)
	if err != nil {
		return nil, err
	}

	stmtID, err := o.commit(check.Issuer, check.Filenames, check.FileHashes,
		check.CutoffDay, check.Transactions)
	if err != nil {
		o.checks.Put(check)
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	return &Result{
		State:       domain.StateCommitted,
		StatementID: stmtID,
		Period:      estimatePeriod(check.Transactions, o.now()),
		CutoffDay:   check.CutoffDay,
	}, nil
}

// Cancel discards a batch parked in AWAITING_CONFIRMATION. No storage
// mutation occurs.
func (o *Orchestrator) Cancel(checkID string) error {
	check, err := o.checks.Take(checkID)
	if err != nil {
		return err
	}
	o.log.Info().Str("check_id", check.ID).Int("rows", len(check.Transactions)).
		Msg("batch cancelled")
	return nil
}

// checkFingerprints hashes every file and drops byte-identical re-uploads.
// An index failure counts as "no match" so one bad stored row cannot block
// fresh imports.
func (o *Orchestrator) checkFingerprints(files []File, res *Result) []File {
	var kept []File
	for _, f := range files {
		hash := dedup.Fingerprint(f.Data)
		match, err := o.index.FindDuplicate(hash)
		if err != nil {
			o.log.Warn().Err(err).Str("file", f.Name).Msg("fingerprint lookup failed")
		}
		if match != nil {
			res.Rejected = append(res.Rejected, domain.RejectedFile{
				Filename: f.Name,
				Matched:  *match,
			})
			o.log.Info().Str("file", f.Name).Int64("statement_id", match.ID).
				Msg("rejected byte-identical re-upload")
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// extractBatch extracts every kept file and returns the per-page results
// in document order. Filenames and fingerprints are collected only for
// files that actually contributed pages, so a dead file's fingerprint is
// never committed.
func (o *Orchestrator) extractBatch(ctx context.Context, files []File, res *Result) ([]domain.PageExtraction, []string, []string) {
	var pages []domain.PageExtraction
	var names, hashes []string
	for _, f := range files {
		out, failed, err := o.extractFile(ctx, f)
		if err != nil {
			// The whole file contributed nothing; report it as one
			// failed page and move on.
			o.log.Warn().Err(err).Str("file", f.Name).Msg("file extraction failed")
			res.PagesFailed++
			continue
		}
		res.PagesFailed += failed
		if len(out) == 0 {
			continue
		}
		pages = append(pages, out...)
		names = append(names, f.Name)
		hashes = append(hashes, dedup.Fingerprint(f.Data))
	}
	return pages, names, hashes
}

// extractFile renders one file and extracts its pages. Extraction runs in
// parallel across pages, but results keep document order so consensus
// tie-breaking stays deterministic regardless of completion order.
func (o *Orchestrator) extractFile(ctx context.Context, f File) ([]domain.PageExtraction, int, error) {
	rendered, err := o.renderer.RenderPages(ctx, f.Name, f.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("render %s: %w", f.Name, err)
	}

	results := make([]domain.PageExtraction, len(rendered))
	errs := make([]error, len(rendered))
	var wg sync.WaitGroup
	for i := range rendered {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.extractor.ExtractPage(ctx, rendered[i])
		}(i)
	}
	wg.Wait()

	var out []domain.PageExtraction
	failed := 0
	for i := range rendered {
		if errs[i] != nil {
			failed++
			o.log.Warn().Err(errs[i]).Str("file", f.Name).Int("page", i+1).
				Msg("page extraction failed")
			continue
		}
		out = append(out, results[i])
	}
	return out, failed, nil
}

// collectCandidates turns page extractions into typed candidate rows,
// dropping payment rows and rows whose year is implausibly old (leaked
// from interest-example pages).
func (o *Orchestrator) collectCandidates(pages []domain.PageExtraction, issuer string, res *Result) []domain.Transaction {
	currentYear := o.now().Year()
	var candidates []domain.Transaction
	for _, p := range pages {
		for _, e := range p.Transactions {
			if e.IsPayment {
				continue
			}
			if staleYear(e.TransDate, currentYear, o.th.RecencyYears) {
				res.StaleFiltered++
				continue
			}
			candidates = append(candidates, domain.Transaction{
				TransDate:   e.TransDate,
				PostingDate: e.PostingDate,
				Description: e.Description,
				Amount:      e.Amount,
				Category:    domain.CategoryOther,
				Issuer:      issuer,
			})
		}
	}
	if res.StaleFiltered > 0 {
		o.log.Info().Int("rows", res.StaleFiltered).Msg("filtered stale-dated rows")
	}
	return candidates
}

// applyLabels asks the labeling collaborator to categorize the batch,
// seeding it with previously labeled rows. Failures leave the default
// category in place.
func (o *Orchestrator) applyLabels(ctx context.Context, candidates []domain.Transaction) {
	if o.labeler == nil {
		return
	}
	examples, err := o.txns.SampleLabeled(3)
	if err != nil {
		o.log.Warn().Err(err).Msg("loading labeled examples failed")
		examples = nil
	}

	descs := make([]string, len(candidates))
	for i := range candidates {
		descs[i] = candidates[i].Description
	}
	labels, err := o.labeler.Label(ctx, descs, examples)
	if err != nil || len(labels) != len(candidates) {
		o.log.Warn().Err(err).Msg("labeling failed, keeping default category")
		return
	}
	for i := range candidates {
		candidates[i].Category, candidates[i].Subcategory =
			domain.NormalizeLabel(labels[i].Category, labels[i].Subcategory)
	}
}

// commit persists one statement plus its transactions atomically.
func (o *Orchestrator) commit(issuer string, filenames, hashes []string, cutoffDay int, txns []domain.Transaction) (int64, error) {
	stmt := &domain.Statement{
		Filename:   strings.Join(filenames, ", "),
		Issuer:     issuer,
		Period:     estimatePeriod(txns, o.now()),
		ImportedAt: o.now(),
		CutoffDay:  cutoffDay,
		FileHash:   strings.Join(hashes, ","),
	}
	stmtID, err := o.stmts.CreateWithTransactions(stmt, txns)
	if err != nil {
		return 0, err
	}
	o.log.Info().Int64("statement_id", stmtID).Str("period", stmt.Period).
		Int("rows", len(txns)).Msg("batch committed")
	return stmtID, nil
}

// estimatePeriod derives the billing period as the month of the latest
// transaction date, falling back to the current month when no row carries
// a date. ISO dates compare correctly as strings.
func estimatePeriod(txns []domain.Transaction, now time.Time) string {
	latest := ""
	for i := range txns {
		if txns[i].TransDate > latest {
			latest = txns[i].TransDate
		}
	}
	if len(latest) >= 7 {
		return latest[:7]
	}
	return now.Format("2006-01")
}

// staleYear reports whether a date's year is more than maxYears behind the
// current year. Unparseable dates are kept.
func staleYear(date string, currentYear, maxYears int) bool {
	if len(date) < 4 {
		return false
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return false
	}
	return currentYear-y > maxYears
}

func statementWarning(c domain.MatchCandidate) domain.Warning {
	note := "different issuer label: " + c.Issuer
	if c.IssuerMatch {
		note = "same issuer"
	}
	cc := c
	return domain.Warning{
		Kind: domain.WarningStatementOverlap,
		Message: fmt.Sprintf(
			"statement for period %s imported %s looks similar (%s, total differs by %.1f%%)",
			c.Period, c.ImportedAt.Format("2006-01-02"), note, c.DiffRatio*100),
		Candidate: &cc,
	}
}

func overlapWarning(ov domain.OverlapResult) domain.Warning {
	oo := ov
	return domain.Warning{
		Kind: domain.WarningTransactionOverlap,
		Message: fmt.Sprintf(
			"%d of %d rows already match stored transactions on date+amount (%d also match on description, %.0f%%)",
			ov.SoftCount, ov.PositiveTotal, ov.ExactCount, ov.OverlapRatio*100),
		Overlap: &oo,
	}
}
