package ingest

import (
	"sync"
	"time"

	"github.com/cardlens/analyzer/internal/domain"
)

// pendingCheck is a batch parked in AWAITING_CONFIRMATION, with everything
// needed to commit it once the caller decides.
type pendingCheck struct {
	ID           string
	Issuer       string
	Filenames    []string
	FileHashes   []string
	CutoffDay    int
	Transactions []domain.Transaction
	Warnings     []domain.Warning
	CreatedAt    time.Time
}

// CheckStore keeps batches awaiting confirmation in process memory, safe
// for concurrent use. Contents are lost on restart; the caller simply
// re-ingests.
type CheckStore struct {
	mu     sync.Mutex
	checks map[string]*pendingCheck
}

func NewCheckStore() *CheckStore {
	return &CheckStore{checks: make(map[string]*pendingCheck)}
}

func (s *CheckStore) Put(c *pendingCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[c.ID] = c
}

// Take removes and returns the check with the given id. Removal is atomic
// so a confirm and a cancel racing on the same check resolve it exactly
// once.
func (s *CheckStore) Take(id string) (*pendingCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checks[id]
	if !ok {
		return nil, domain.ErrCheckNotFound
	}
	delete(s.checks, id)
	return c, nil
}

func (s *CheckStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checks)
}
