package dedup

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/repository"
)

// Fingerprint returns the SHA-256 hex digest of the complete file content.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Index looks up content fingerprints across all stored statements to
// catch byte-identical re-uploads. Near-duplicate detection is the
// statement and transaction matchers' job, not this layer's.
type Index struct {
	stmts *repository.StatementRepo
}

func NewIndex(stmts *repository.StatementRepo) *Index {
	return &Index{stmts: stmts}
}

// FindDuplicate returns the first stored statement whose fingerprint set
// contains hash, or nil when the content has never been seen. A statement
// imported from a multi-file batch stores the comma-joined fingerprints of
// its constituent files; all of them are checked.
func (ix *Index) FindDuplicate(hash string) (*domain.Statement, error) {
	if hash == "" {
		return nil, nil
	}
	stmts, err := ix.stmts.ListFingerprinted()
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	for i := range stmts {
		for _, h := range strings.Split(stmts[i].FileHash, ",") {
			if strings.TrimSpace(h) == hash {
				s := stmts[i]
				return &s, nil
			}
		}
	}
	return nil, nil
}
