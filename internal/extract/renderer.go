package extract

import (
	"context"
	"path"
	"strings"

	"github.com/cardlens/analyzer/internal/domain"
)

// WholeFile is a PageRenderer that hands each uploaded file to the model
// as a single page. Gemini reads multi-page PDFs inline, so no local
// rasterization is needed; metadata voting then sees one page per file.
type WholeFile struct{}

func (WholeFile) RenderPages(_ context.Context, filename string, data []byte) ([]domain.Page, error) {
	return []domain.Page{{MIMEType: detectMIME(filename), Data: data}}, nil
}

func detectMIME(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
