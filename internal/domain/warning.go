package domain

import "errors"

// WarningKind classifies an advisory duplicate finding. Advisory findings
// never block a batch on their own: they require an explicit caller
// decision before commit.
type WarningKind string

const (
	WarningStatementOverlap   WarningKind = "STATEMENT_OVERLAP"
	WarningTransactionOverlap WarningKind = "TRANSACTION_OVERLAP"
)

// Warning is one advisory duplicate finding surfaced to the caller.
type Warning struct {
	Kind      WarningKind     `json:"kind"`
	Message   string          `json:"message"`
	Candidate *MatchCandidate `json:"candidate,omitempty"`
	Overlap   *OverlapResult  `json:"overlap,omitempty"`
}

// RejectedFile reports a byte-identical re-upload caught by the
// fingerprint index. Rejection is a hard stop for the file, not the batch.
type RejectedFile struct {
	Filename string    `json:"filename"`
	Matched  Statement `json:"matched_statement"`
}

var (
	// ErrCheckNotFound means the referenced pending check does not exist,
	// was already resolved, or was lost to a restart.
	ErrCheckNotFound = errors.New("pending check not found")

	// ErrNoTransactions means extraction produced no usable candidate rows
	// for any file in the batch.
	ErrNoTransactions = errors.New("no transactions extracted")
)
