package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/analyzer/internal/dedup"
	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/logger"
	"github.com/cardlens/analyzer/internal/repository"
)

type rendererFunc func(ctx context.Context, filename string, data []byte) ([]domain.Page, error)

func (f rendererFunc) RenderPages(ctx context.Context, filename string, data []byte) ([]domain.Page, error) {
	return f(ctx, filename, data)
}

type extractorFunc func(ctx context.Context, page domain.Page) (domain.PageExtraction, error)

func (f extractorFunc) ExtractPage(ctx context.Context, page domain.Page) (domain.PageExtraction, error) {
	return f(ctx, page)
}

type labelerFunc func(ctx context.Context, descriptions []string, examples []domain.LabeledExample) ([]domain.Label, error)

func (f labelerFunc) Label(ctx context.Context, descriptions []string, examples []domain.LabeledExample) ([]domain.Label, error) {
	return f(ctx, descriptions, examples)
}

// singlePage hands the whole file to the extractor as one page, keyed by
// its raw bytes so table extractors can dispatch on content.
func singlePage(ctx context.Context, _ string, data []byte) ([]domain.Page, error) {
	return []domain.Page{{MIMEType: "application/pdf", Data: data}}, nil
}

// byContent builds an extractor that returns a canned extraction per file
// body and fails on anything unexpected.
func byContent(m map[string]domain.PageExtraction) extractorFunc {
	return func(_ context.Context, page domain.Page) (domain.PageExtraction, error) {
		out, ok := m[string(page.Data)]
		if !ok {
			return domain.PageExtraction{}, fmt.Errorf("unexpected page %q", page.Data)
		}
		return out, nil
	}
}

func extRow(date string, amount float64, desc string) domain.ExtractedTransaction {
	return domain.ExtractedTransaction{TransDate: date, Description: desc, Amount: amount}
}

var fixedNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, extractor PageExtractor, labeler Labeler) (*Orchestrator, *repository.StatementRepo, *repository.TransactionRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := repository.NewStatementRepo(db)
	txns := repository.NewTransactionRepo(db)
	o := NewOrchestrator(stmts, txns, rendererFunc(singlePage), extractor, labeler,
		DefaultThresholds(), logger.NewWithWriter(io.Discard))
	o.now = func() time.Time { return fixedNow }
	return o, stmts, txns
}

func TestIngestCleanBatchCommits(t *testing.T) {
	o, stmts, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"jan.pdf bytes": {
			Transactions: []domain.ExtractedTransaction{
				extRow("2026-01-05", 150, "TMN 7-11 BANGKOK TH"),
				extRow("2026-01-18", 320.50, "GRABFOOD"),
			},
			CutoffDay:  20,
			IssuerName: "KTB",
			CardName:   "Visa Platinum",
		},
	}), nil)

	res, err := o.Ingest(context.Background(), "My KTB Card",
		[]File{{Name: "jan.pdf", Data: []byte("jan.pdf bytes")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateCommitted, res.State)
	assert.NotZero(t, res.StatementID)
	assert.Equal(t, "2026-01", res.Period)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.CheckID)
	assert.Equal(t, 20, res.CutoffDay)
	assert.Equal(t, "KTB Visa Platinum", res.SuggestedIssuer)

	stmt, err := stmts.GetByID(res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "My KTB Card", stmt.Issuer)
	assert.Equal(t, "jan.pdf", stmt.Filename)
	assert.Equal(t, "2026-01", stmt.Period)
	assert.Equal(t, 20, stmt.CutoffDay)
	assert.Equal(t, dedup.Fingerprint([]byte("jan.pdf bytes")), stmt.FileHash)

	rows, err := txns.ListByStatement(res.StatementID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, domain.CategoryOther, r.Category)
		assert.Equal(t, "My KTB Card", r.Issuer)
	}
}

func TestIngestRejectsByteIdenticalReupload(t *testing.T) {
	o, stmts, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"same bytes": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-05", 150, "SHOP"),
		}},
	}), nil)

	first, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "a.pdf", Data: []byte("same bytes")}})
	require.NoError(t, err)
	require.Equal(t, domain.StateCommitted, first.State)

	// Same content under a different filename is still the same file.
	second, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "renamed.pdf", Data: []byte("same bytes")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateRejectedDuplicate, second.State)
	require.Len(t, second.Rejected, 1)
	assert.Equal(t, "renamed.pdf", second.Rejected[0].Filename)
	assert.Equal(t, first.StatementID, second.Rejected[0].Matched.ID)

	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = txns.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestMixedBatchKeepsFreshFiles(t *testing.T) {
	o, stmts, _ := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"old bytes": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-05", 150, "SHOP A"),
		}},
		"new bytes": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-02-03", 999, "SHOP B"),
		}},
	}), nil)

	_, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "old.pdf", Data: []byte("old bytes")}})
	require.NoError(t, err)

	res, err := o.Ingest(context.Background(), "KTB", []File{
		{Name: "old.pdf", Data: []byte("old bytes")},
		{Name: "new.pdf", Data: []byte("new bytes")},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateCommitted, res.State)
	assert.Len(t, res.Rejected, 1)

	stmt, err := stmts.GetByID(res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "new.pdf", stmt.Filename)
	assert.Equal(t, dedup.Fingerprint([]byte("new bytes")), stmt.FileHash)

	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestSimilarStatementParkedThenConfirmed(t *testing.T) {
	// Second file: same period, total within 5% of the stored 1000, but
	// distinct dates and amounts so no row-level signal fires.
	o, stmts, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"first": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-05", 600, "SHOP A"),
			extRow("2026-01-10", 400, "SHOP B"),
		}},
		"second": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-06", 615, "SHOP C"),
			extRow("2026-01-11", 415, "SHOP D"),
		}},
	}), nil)

	ctx := context.Background()
	_, err := o.Ingest(ctx, "KTB", []File{{Name: "first.pdf", Data: []byte("first")}})
	require.NoError(t, err)

	res, err := o.Ingest(ctx, "KTB", []File{{Name: "second.pdf", Data: []byte("second")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateAwaitingConfirmation, res.State)
	require.NotEmpty(t, res.CheckID)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.WarningStatementOverlap, res.Warnings[0].Kind)
	require.NotNil(t, res.Warnings[0].Candidate)
	assert.InDelta(t, 0.03, res.Warnings[0].Candidate.DiffRatio, 1e-9)
	assert.True(t, res.Warnings[0].Candidate.IssuerMatch)

	// Nothing persisted while parked.
	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	confirmed, err := o.Confirm(ctx, res.CheckID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCommitted, confirmed.State)
	assert.Equal(t, "2026-01", confirmed.Period)

	n, err = stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = txns.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// A check is consumed exactly once.
	_, err = o.Confirm(ctx, res.CheckID)
	assert.ErrorIs(t, err, domain.ErrCheckNotFound)
}

func TestIngestCancelDiscardsBatch(t *testing.T) {
	o, stmts, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"first":  {Transactions: []domain.ExtractedTransaction{extRow("2026-01-05", 1000, "SHOP A")}},
		"second": {Transactions: []domain.ExtractedTransaction{extRow("2026-01-06", 1000, "SHOP B")}},
	}), nil)

	ctx := context.Background()
	_, err := o.Ingest(ctx, "KTB", []File{{Name: "first.pdf", Data: []byte("first")}})
	require.NoError(t, err)

	res, err := o.Ingest(ctx, "KTB", []File{{Name: "second.pdf", Data: []byte("second")}})
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingConfirmation, res.State)

	require.NoError(t, o.Cancel(res.CheckID))

	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = txns.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, o.Cancel(res.CheckID), domain.ErrCheckNotFound)
	_, err = o.Confirm(ctx, res.CheckID)
	assert.ErrorIs(t, err, domain.ErrCheckNotFound)
}

func TestIngestTransactionOverlapWarning(t *testing.T) {
	stored := make([]domain.ExtractedTransaction, 6)
	incoming := make([]domain.ExtractedTransaction, 0, 10)
	for i := 0; i < 6; i++ {
		date := fmt.Sprintf("2026-01-%02d", i+1)
		stored[i] = extRow(date, 100, fmt.Sprintf("STORE %d", i))
		// Same date and amount, mangled description: soft match only.
		incoming = append(incoming, extRow(date, 100, fmt.Sprintf("ST0RE %d", i)))
	}
	for i := 0; i < 4; i++ {
		incoming = append(incoming, extRow(fmt.Sprintf("2026-01-%02d", 20+i), 500, fmt.Sprintf("NEW %d", i)))
	}

	o, _, _ := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"stored":   {Transactions: stored},
		"incoming": {Transactions: incoming},
	}), nil)

	ctx := context.Background()
	_, err := o.Ingest(ctx, "KTB", []File{{Name: "stored.pdf", Data: []byte("stored")}})
	require.NoError(t, err)

	// Totals differ far past tolerance, so the only signal is row-level.
	res, err := o.Ingest(ctx, "KTB", []File{{Name: "incoming.pdf", Data: []byte("incoming")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateAwaitingConfirmation, res.State)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.WarningTransactionOverlap, res.Warnings[0].Kind)
	require.NotNil(t, res.Warnings[0].Overlap)
	assert.Equal(t, 6, res.Warnings[0].Overlap.SoftCount)
	assert.Zero(t, res.Warnings[0].Overlap.ExactCount)
	assert.InDelta(t, 0.6, res.Warnings[0].Overlap.OverlapRatio, 1e-9)
}

func TestIngestBelowOverlapThresholdCommits(t *testing.T) {
	stored := make([]domain.ExtractedTransaction, 4)
	incoming := make([]domain.ExtractedTransaction, 0, 10)
	for i := 0; i < 4; i++ {
		date := fmt.Sprintf("2026-01-%02d", i+1)
		stored[i] = extRow(date, 100, fmt.Sprintf("STORE %d", i))
		incoming = append(incoming, extRow(date, 100, fmt.Sprintf("STORE %d", i)))
	}
	for i := 0; i < 6; i++ {
		incoming = append(incoming, extRow(fmt.Sprintf("2026-01-%02d", 20+i), 500, fmt.Sprintf("NEW %d", i)))
	}

	o, stmts, _ := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"stored":   {Transactions: stored},
		"incoming": {Transactions: incoming},
	}), nil)

	ctx := context.Background()
	_, err := o.Ingest(ctx, "KTB", []File{{Name: "stored.pdf", Data: []byte("stored")}})
	require.NoError(t, err)

	// 4 of 10 rows overlap: below the 0.5 ratio, commits without asking.
	res, err := o.Ingest(ctx, "KTB", []File{{Name: "incoming.pdf", Data: []byte("incoming")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateCommitted, res.State)
	assert.Empty(t, res.Warnings)

	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestNoTransactions(t *testing.T) {
	o, stmts, _ := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"blank": {},
	}), nil)

	_, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "blank.pdf", Data: []byte("blank")}})
	assert.ErrorIs(t, err, domain.ErrNoTransactions)

	n, err := stmts.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestFiltersPaymentsAndStaleRows(t *testing.T) {
	o, _, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"mixed": {Transactions: []domain.ExtractedTransaction{
			{TransDate: "2026-01-05", Description: "PAYMENT - THANK YOU", Amount: -2000, IsPayment: true},
			// Interest-example row leaked from a footer, years out of range.
			extRow("2020-01-15", 123.45, "INTEREST EXAMPLE"),
			extRow("2026-01-07", 150, "SHOP"),
		}},
	}), nil)

	res, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "mixed.pdf", Data: []byte("mixed")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateCommitted, res.State)
	assert.Equal(t, 1, res.StaleFiltered)

	n, err := txns.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestPageFailureIsolated(t *testing.T) {
	twoPages := rendererFunc(func(_ context.Context, _ string, data []byte) ([]domain.Page, error) {
		return []domain.Page{
			{MIMEType: "application/pdf", Data: append([]byte("p1:"), data...)},
			{MIMEType: "application/pdf", Data: append([]byte("p2:"), data...)},
		}, nil
	})
	extractor := extractorFunc(func(_ context.Context, page domain.Page) (domain.PageExtraction, error) {
		if string(page.Data) == "p1:doc" {
			return domain.PageExtraction{}, errors.New("model returned garbage")
		}
		return domain.PageExtraction{Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-07", 150, "SHOP"),
		}}, nil
	})

	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	stmts := repository.NewStatementRepo(db)
	o := NewOrchestrator(stmts, repository.NewTransactionRepo(db), twoPages, extractor, nil,
		DefaultThresholds(), logger.NewWithWriter(io.Discard))
	o.now = func() time.Time { return fixedNow }

	res, err := o.Ingest(context.Background(), "KTB",
		[]File{{Name: "doc.pdf", Data: []byte("doc")}})
	require.NoError(t, err)

	assert.Equal(t, domain.StateCommitted, res.State)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Len(t, res.Transactions, 1)
}

func TestIngestDeadFileHashNotCommitted(t *testing.T) {
	o, stmts, _ := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"good": {Transactions: []domain.ExtractedTransaction{extRow("2026-01-07", 150, "SHOP")}},
	}), nil)
	// "bad" is absent from the table, so its only page fails and the file
	// contributes nothing.
	res, err := o.Ingest(context.Background(), "KTB", []File{
		{Name: "bad.pdf", Data: []byte("bad")},
		{Name: "good.pdf", Data: []byte("good")},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateCommitted, res.State)

	stmt, err := stmts.GetByID(res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "good.pdf", stmt.Filename)
	assert.Equal(t, dedup.Fingerprint([]byte("good")), stmt.FileHash)

	// The failed file was not fingerprinted, so a retry reaches extraction
	// again instead of bouncing off the duplicate index.
	_, err = o.Ingest(context.Background(), "KTB",
		[]File{{Name: "bad.pdf", Data: []byte("bad")}})
	assert.ErrorIs(t, err, domain.ErrNoTransactions)
}

func TestIngestSuggestedIssuerFallback(t *testing.T) {
	table := map[string]domain.PageExtraction{
		"doc": {
			Transactions: []domain.ExtractedTransaction{extRow("2026-01-07", 150, "SHOP")},
			IssuerName:   "KTB",
			CardName:     "Visa Platinum",
		},
	}

	o, stmts, _ := newTestOrchestrator(t, byContent(table), nil)
	res, err := o.Ingest(context.Background(), "", []File{{Name: "doc.pdf", Data: []byte("doc")}})
	require.NoError(t, err)
	stmt, err := stmts.GetByID(res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "KTB Visa Platinum", stmt.Issuer)

	// A caller-supplied label always wins over the extracted one.
	o2, stmts2, _ := newTestOrchestrator(t, byContent(table), nil)
	res, err = o2.Ingest(context.Background(), "my everyday card", []File{{Name: "doc.pdf", Data: []byte("doc")}})
	require.NoError(t, err)
	stmt, err = stmts2.GetByID(res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "my everyday card", stmt.Issuer)
}

func TestIngestAppliesLabels(t *testing.T) {
	labeler := labelerFunc(func(_ context.Context, descs []string, _ []domain.LabeledExample) ([]domain.Label, error) {
		labels := make([]domain.Label, len(descs))
		for i := range labels {
			labels[i] = domain.Label{Category: "food_drink", Subcategory: "food_delivery"}
		}
		return labels, nil
	})

	o, _, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
		"doc": {Transactions: []domain.ExtractedTransaction{
			extRow("2026-01-07", 150, "GRABFOOD"),
			extRow("2026-01-08", 220, "LINEMAN"),
		}},
	}), labeler)

	res, err := o.Ingest(context.Background(), "KTB", []File{{Name: "doc.pdf", Data: []byte("doc")}})
	require.NoError(t, err)

	rows, err := txns.ListByStatement(res.StatementID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "food_drink", r.Category)
		assert.Equal(t, "food_delivery", r.Subcategory)
	}
}

func TestIngestLabelerFailureKeepsDefaults(t *testing.T) {
	tests := []struct {
		name    string
		labeler labelerFunc
	}{
		{"error", func(_ context.Context, _ []string, _ []domain.LabeledExample) ([]domain.Label, error) {
			return nil, errors.New("quota exceeded")
		}},
		{"length mismatch", func(_ context.Context, descs []string, _ []domain.LabeledExample) ([]domain.Label, error) {
			return make([]domain.Label, len(descs)+1), nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, txns := newTestOrchestrator(t, byContent(map[string]domain.PageExtraction{
				"doc": {Transactions: []domain.ExtractedTransaction{extRow("2026-01-07", 150, "SHOP")}},
			}), tt.labeler)

			res, err := o.Ingest(context.Background(), "KTB", []File{{Name: "doc.pdf", Data: []byte("doc")}})
			require.NoError(t, err)

			rows, err := txns.ListByStatement(res.StatementID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, domain.CategoryOther, rows[0].Category)
		})
	}
}

func TestEstimatePeriod(t *testing.T) {
	rows := []domain.Transaction{
		{TransDate: "2026-01-05"},
		{TransDate: "2026-02-01"},
		{TransDate: "2025-12-30"},
	}
	assert.Equal(t, "2026-02", estimatePeriod(rows, fixedNow))
	assert.Equal(t, "2026-02", estimatePeriod(nil, fixedNow))
	assert.Equal(t, "2026-02", estimatePeriod([]domain.Transaction{{TransDate: ""}}, fixedNow))
}

func TestStaleYear(t *testing.T) {
	assert.True(t, staleYear("2020-01-15", 2026, 3))
	assert.False(t, staleYear("2023-01-15", 2026, 3))
	assert.False(t, staleYear("2026-01-15", 2026, 3))
	// Unparseable dates are kept rather than silently dropped.
	assert.False(t, staleYear("n/a", 2026, 3))
	assert.False(t, staleYear("", 2026, 3))
}
