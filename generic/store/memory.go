// Package store provides RecordStore implementations.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	tables map[string][]generic.Row

	// failures injects a transport error for a table, for exercising
	// per-table failure isolation.
	failures map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string][]generic.Row),
		failures: make(map[string]error),
	}
}

// Seed replaces the content of a table.
func (m *Memory) Seed(table string, rows ...generic.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]generic.Row, len(rows))
	for i, r := range rows {
		copied[i] = r.Clone()
	}
	m.tables[table] = copied
}

// FailOn makes every access to table return err.
func (m *Memory) FailOn(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[table] = err
}

func (m *Memory) Select(_ context.Context, table string, filter generic.Filter) ([]generic.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(table, filter)
}

func (m *Memory) selectLocked(table string, filter generic.Filter) ([]generic.Row, error) {
	if err := m.failures[table]; err != nil {
		return nil, &generic.TransportError{Table: table, Op: "select", Err: err}
	}
	rows, ok := m.tables[table]
	if !ok {
		return nil, &generic.TransportError{Table: table, Op: "select", Err: fmt.Errorf("relation %q does not exist", table)}
	}
	var result []generic.Row
	for _, r := range rows {
		if filter.Match(r) {
			result = append(result, r.Clone())
		}
	}
	return result, nil
}

// Upsert inserts rows, replacing columns of rows that collide on conflictKeys.
func (m *Memory) Upsert(_ context.Context, table string, rows []generic.Row, conflictKeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(table, rows, conflictKeys)
}

func (m *Memory) upsertLocked(table string, rows []generic.Row, conflictKeys []string) error {
	if err := m.failures[table]; err != nil {
		return &generic.TransportError{Table: table, Op: "upsert", Err: err}
	}
	existing := m.tables[table]
	for _, row := range rows {
		key, err := naturalKey(row, conflictKeys)
		if err != nil {
			return &generic.TransportError{Table: table, Op: "upsert", Err: err}
		}
		replaced := false
		for i, current := range existing {
			if k, _ := naturalKey(current, conflictKeys); k == key && len(conflictKeys) > 0 {
				merged := current.Clone()
				for col, v := range row {
					merged[col] = v
				}
				existing[i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, row.Clone())
		}
	}
	m.tables[table] = existing
	return nil
}

func naturalKey(row generic.Row, keys []string) (string, error) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, ok := row[k]
		if !ok {
			return "", fmt.Errorf("row has no conflict column %q", k)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00"), nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.RecordStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.tables = snapshot
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() map[string][]generic.Row {
	copied := make(map[string][]generic.Row, len(tm.tables))
	for name, rows := range tm.tables {
		c := make([]generic.Row, len(rows))
		for i, r := range rows {
			c[i] = r.Clone()
		}
		copied[name] = c
	}
	return copied
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Select(_ context.Context, table string, filter generic.Filter) ([]generic.Row, error) {
	return tv.parent.selectLocked(table, filter)
}

func (tv *txMemoryView) Upsert(_ context.Context, table string, rows []generic.Row, conflictKeys []string) error {
	return tv.parent.upsertLocked(table, rows, conflictKeys)
}
