package domain

import "time"

// CheckState tracks one ingestion attempt through the duplicate-check
// state machine.
type CheckState string

const (
	StateCheckingFingerprint  CheckState = "CHECKING_FINGERPRINT"
	StateCheckingFuzzy        CheckState = "CHECKING_FUZZY"
	StateAwaitingConfirmation CheckState = "AWAITING_CONFIRMATION"
	StateCommitted            CheckState = "COMMITTED"
	StateRejectedDuplicate    CheckState = "REJECTED_DUPLICATE"
	StateCancelled            CheckState = "CANCELLED"
)

// Statement is one ingested document batch. Its period is always derived
// from its transactions at save time, never edited directly.
type Statement struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"` // comma-joined source filenames
	Issuer     string    `json:"issuer"`
	Period     string    `json:"period"` // YYYY-MM
	ImportedAt time.Time `json:"imported_at"`
	TxCount    int       `json:"tx_count"`
	CutoffDay  int       `json:"cutoff_day,omitempty"` // 1-31, 0 = unknown
	FileHash   string    `json:"file_hash,omitempty"`  // comma-joined SHA-256 hex digests
}

// Transaction belongs to exactly one Statement; deleting the Statement
// deletes all its Transactions.
type Transaction struct {
	ID          int64   `json:"id"`
	StatementID int64   `json:"statement_id"`
	TransDate   string  `json:"trans_date"` // YYYY-MM-DD
	PostingDate string  `json:"posting_date,omitempty"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"` // positive = expense, non-positive = credit/cashback
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Issuer      string  `json:"issuer"`
}

// MatchCandidate is the transient result of a fuzzy statement comparison.
type MatchCandidate struct {
	StatementID int64     `json:"statement_id"`
	Filename    string    `json:"filename"`
	Issuer      string    `json:"issuer"`
	Period      string    `json:"period"`
	ImportedAt  time.Time `json:"imported_at"`
	StoredTotal float64   `json:"stored_total"`
	DiffRatio   float64   `json:"diff_ratio"`
	IssuerMatch bool      `json:"issuer_match"`
}

// OverlapResult summarises a transaction-level overlap check.
type OverlapResult struct {
	ExactCount    int     `json:"exact_count"`
	SoftCount     int     `json:"soft_count"`
	OverlapRatio  float64 `json:"overlap_ratio"`
	Total         int     `json:"total"`
	PositiveTotal int     `json:"positive_total"`
}
