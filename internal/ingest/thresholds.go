package ingest

import (
	"os"
	"strconv"
)

// Thresholds are the duplicate-detection tuning constants. The defaults
// are empirically chosen; override them from the environment only with
// evidence they are wrong.
type Thresholds struct {
	// StatementTolerance is the maximum relative difference between
	// period totals for a statement-level match.
	StatementTolerance float64
	// SoftOverlapRatio is the soft-match ratio at or above which a batch
	// requires explicit confirmation.
	SoftOverlapRatio float64
	// AmountSlack is the absolute amount slack for row matching.
	AmountSlack float64
	// RecencyYears is how many years back a transaction date can be
	// before the row is treated as a stale extraction artifact.
	RecencyYears int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StatementTolerance: 0.05,
		SoftOverlapRatio:   0.5,
		AmountSlack:        1.0,
		RecencyYears:       3,
	}
}

// ThresholdsFromEnv returns the defaults with any STATEMENT_TOLERANCE,
// SOFT_OVERLAP_RATIO, AMOUNT_SLACK or RECENCY_YEARS environment overrides
// applied. Unparseable or non-positive values are ignored.
func ThresholdsFromEnv() Thresholds {
	t := DefaultThresholds()
	if v := envFloat("STATEMENT_TOLERANCE"); v > 0 {
		t.StatementTolerance = v
	}
	if v := envFloat("SOFT_OVERLAP_RATIO"); v > 0 {
		t.SoftOverlapRatio = v
	}
	if v := envFloat("AMOUNT_SLACK"); v > 0 {
		t.AmountSlack = v
	}
	if v := os.Getenv("RECENCY_YEARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			t.RecencyYears = n
		}
	}
	return t
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
