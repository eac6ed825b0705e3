package dedup

import (
	"github.com/rs/zerolog"

	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/repository"
)

// OverlapDetector counts how many candidate rows already exist in storage,
// at two strictness levels per row:
//
//   - exact: same date and description, amount within slack
//   - soft:  same date, amount within slack, description ignored
//
// The soft ratio is the primary decision signal; it survives OCR noise in
// merchant text that the exact check misses.
type OverlapDetector struct {
	txns  *repository.TransactionRepo
	slack float64
	log   zerolog.Logger
}

func NewOverlapDetector(txns *repository.TransactionRepo, slack float64, log zerolog.Logger) *OverlapDetector {
	return &OverlapDetector{txns: txns, slack: slack, log: log}
}

// FindOverlap checks each positive-amount candidate independently against
// stored transactions. Credits and payment adjustments are skipped: they
// are less distinguishing and more prone to extraction noise. A lookup
// failure counts as "no match" for that row and is logged, never fatal.
func (d *OverlapDetector) FindOverlap(candidates []domain.Transaction) domain.OverlapResult {
	res := domain.OverlapResult{Total: len(candidates)}

	for i := range candidates {
		c := &candidates[i]
		if c.Amount <= 0 {
			continue
		}
		res.PositiveTotal++

		exact, err := d.txns.ExistsExact(c.TransDate, c.Description, c.Amount, d.slack)
		if err != nil {
			d.log.Warn().Err(err).Str("date", c.TransDate).Msg("exact overlap lookup failed")
		} else if exact {
			res.ExactCount++
		}

		soft, err := d.txns.ExistsSoft(c.TransDate, c.Amount, d.slack)
		if err != nil {
			d.log.Warn().Err(err).Str("date", c.TransDate).Msg("soft overlap lookup failed")
		} else if soft {
			res.SoftCount++
		}
	}

	if res.PositiveTotal > 0 {
		res.OverlapRatio = float64(res.SoftCount) / float64(res.PositiveTotal)
	}
	return res
}
