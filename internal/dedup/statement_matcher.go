package dedup

import (
	"fmt"
	"math"

	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/repository"
)

// StatementMatcher flags stored statements that look like the same billing
// period re-imported from a different file.
type StatementMatcher struct {
	stmts     *repository.StatementRepo
	tolerance float64
}

func NewStatementMatcher(stmts *repository.StatementRepo, tolerance float64) *StatementMatcher {
	return &StatementMatcher{stmts: stmts, tolerance: tolerance}
}

// FindSimilar returns stored statements whose period exactly equals period
// and whose positive-amount total is within the tolerance fraction of
// total. Issuer never filters the candidate set (extraction spells issuer
// names inconsistently across documents); it only feeds the advisory
// issuer_match flag on each candidate.
func (m *StatementMatcher) FindSimilar(issuer, period string, total float64) ([]domain.MatchCandidate, error) {
	if period == "" {
		return nil, nil
	}
	rows, err := m.stmts.PeriodTotals(period)
	if err != nil {
		return nil, fmt.Errorf("period totals: %w", err)
	}

	var candidates []domain.MatchCandidate
	for _, row := range rows {
		stored := row.PositiveTotal
		var ratio float64
		switch {
		case stored == 0 && total == 0:
			// An all-credit or empty statement colliding with another one
			// is still worth flagging.
			ratio = 0
		case stored == 0:
			// Zero against non-zero has no meaningful ratio.
			continue
		default:
			// max(|stored|, 1) guards against near-zero denominators
			// inflating the ratio for very small statements.
			ratio = math.Abs(total-stored) / math.Max(math.Abs(stored), 1)
			if ratio > m.tolerance {
				continue
			}
		}
		candidates = append(candidates, domain.MatchCandidate{
			StatementID: row.Statement.ID,
			Filename:    row.Statement.Filename,
			Issuer:      row.Statement.Issuer,
			Period:      row.Statement.Period,
			ImportedAt:  row.Statement.ImportedAt,
			StoredTotal: stored,
			DiffRatio:   ratio,
			IssuerMatch: row.Statement.Issuer == issuer,
		})
	}
	return candidates, nil
}
