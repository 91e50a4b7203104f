package codemod

import (
	"context"
	"sync"
	"time"

	"github.com/minio/highwayhash"
)

// =============================================================================
// MIGRATION LEDGER - file identity → last applied rule-set version
// =============================================================================

// LedgerEntry records that a file, with the given content hash, is the
// result of applying a rule-set version. A file whose current hash and the
// current rule-set version both match its entry is skipped without rewriting.
type LedgerEntry struct {
	Path           string    `json:"path"`
	RuleSetVersion string    `json:"rule_set_version"`
	ContentHash    uint64    `json:"content_hash"`
	Changes        int       `json:"changes"`
	AppliedAt      time.Time `json:"applied_at"`
}

// Ledger persists ledger entries.
type Ledger interface {
	// Get returns the entry for path; ok is false if the file was never migrated.
	Get(ctx context.Context, path string) (entry LedgerEntry, ok bool, err error)

	// Put records the entry, replacing any previous entry for the same path.
	Put(ctx context.Context, entry LedgerEntry) error
}

var contentKey = []byte("checkloops-codemod-content-key-0")

// ContentHash fingerprints file content for the ledger.
func ContentHash(content []byte) uint64 {
	h, err := highwayhash.New64(contentKey)
	if err != nil {
		panic(err)
	}
	h.Write(content)
	return h.Sum64()
}

// MemoryLedger is an in-process Ledger (for testing/dev).
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]LedgerEntry)}
}

func (m *MemoryLedger) Get(_ context.Context, path string) (LedgerEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	return e, ok, nil
}

func (m *MemoryLedger) Put(_ context.Context, entry LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Path] = entry
	return nil
}
