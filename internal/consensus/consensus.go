// Package consensus collapses noisy per-page extraction metadata into
// single representative values via majority vote.
package consensus

import "github.com/cardlens/analyzer/internal/domain"

// Result carries the per-field consensus for one document's pages. Zero
// values mean no page observed the field.
type Result struct {
	CutoffDay int
	Issuer    string
	Card      string
}

// Reduce votes each field independently over the observed (non-empty)
// per-page values. Pages must be supplied in document order: ties break
// toward the value observed first, regardless of how page extraction was
// scheduled.
func Reduce(pages []domain.PageExtraction) Result {
	var days []int
	var issuers, cards []string
	for _, p := range pages {
		if p.CutoffDay > 0 {
			days = append(days, p.CutoffDay)
		}
		if p.IssuerName != "" {
			issuers = append(issuers, p.IssuerName)
		}
		if p.CardName != "" {
			cards = append(cards, p.CardName)
		}
	}

	var r Result
	r.CutoffDay, _ = mostFrequent(days)
	r.Issuer, _ = mostFrequent(issuers)
	r.Card, _ = mostFrequent(cards)
	return r
}

// SuggestedIssuer combines the voted issuer and card names into a display
// label: "{issuer} {card}" when both were observed, either alone
// otherwise, empty when neither. Advisory only: it must never overwrite a
// label the user already entered.
func (r Result) SuggestedIssuer() string {
	switch {
	case r.Issuer != "" && r.Card != "":
		return r.Issuer + " " + r.Card
	case r.Issuer != "":
		return r.Issuer
	default:
		return r.Card
	}
}

// mostFrequent returns the most frequent value in vals. A tie goes to the
// value observed first; ok is false when vals is empty.
func mostFrequent[T comparable](vals []T) (winner T, ok bool) {
	counts := make(map[T]int, len(vals))
	best := 0
	for _, v := range vals {
		counts[v]++
		// Strict > keeps the earlier value on equal counts.
		if counts[v] > best {
			best = counts[v]
			winner = v
			ok = true
		}
	}
	return winner, ok
}
