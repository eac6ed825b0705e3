package ingest

import (
	"context"

	"github.com/cardlens/analyzer/internal/domain"
)

// PageRenderer splits an uploaded file into the pages handed to the
// extraction collaborator.
type PageRenderer interface {
	RenderPages(ctx context.Context, filename string, data []byte) ([]domain.Page, error)
}

// PageExtractor is the external OCR/LLM extraction collaborator: it reads
// one rendered page and returns candidate rows plus optional per-page
// metadata. A failed page contributes zero candidates; the error is
// reported but never fails the batch.
type PageExtractor interface {
	ExtractPage(ctx context.Context, page domain.Page) (domain.PageExtraction, error)
}

// Labeler assigns category and subcategory labels to descriptions. Labels
// are validated against the fixed vocabulary before being stored; a
// labeling failure leaves rows on the default category.
type Labeler interface {
	Label(ctx context.Context, descriptions []string, examples []domain.LabeledExample) ([]domain.Label, error)
}
