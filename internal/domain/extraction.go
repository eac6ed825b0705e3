package domain

// Page is one rendered page handed to the extraction collaborator.
type Page struct {
	MIMEType string
	Data     []byte
}

// PageExtraction is the raw extraction output for one page. Zero values
// mean "not observed on this page".
type PageExtraction struct {
	Transactions []ExtractedTransaction `json:"transactions"`
	CutoffDay    int                    `json:"cutoff_day,omitempty"`
	IssuerName   string                 `json:"issuer_name,omitempty"`
	CardName     string                 `json:"card_name,omitempty"`
}

// ExtractedTransaction is a candidate row as read off a page, not yet
// validated or stored.
type ExtractedTransaction struct {
	TransDate   string  `json:"trans_date"`
	PostingDate string  `json:"posting_date,omitempty"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	IsPayment   bool    `json:"is_payment,omitempty"`
}

// Label is a category/subcategory pair produced by the labeling
// collaborator. It is validated against the fixed vocabulary before being
// stored.
type Label struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

// LabeledExample is a previously stored, already labeled row used as a
// reference example for the labeling collaborator.
type LabeledExample struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}
