/*
store.go - Record store interface for the hosted relational database

PURPOSE:
  Defines the seam between the migration stages and the database that
  holds the canonical tables. Only read/write/upsert semantics matter;
  query planning and storage engines stay behind this interface.

KEY INTERFACES:
  RecordStore:   Filtered reads and natural-key upserts
  TxRecordStore: Atomic multi-statement writes (header + detail lines)

FILTERS:
  Filters compose equality predicates with logical AND / OR:

    generic.Or(generic.Eq("role", "GP"), generic.Eq("role", "Nurse"))

  The zero Filter matches every row.

UPSERT:
  Upsert inserts rows and, when a row collides on the conflict keys,
  updates the remaining columns. Emitting the same statements twice is
  therefore safe.

IMPLEMENTATIONS:
  - store/rest/rest.go:     PostgREST-style hosted store
  - store/postgres/postgres.go: Direct Postgres connection (real transactions)
  - store/sqlite/sqlite.go: Local SQLite (also hosts ledger and backups)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - snapshot/manager.go: Reads every tracked table
  - migration/importer.go: Writes generated statements
*/
package generic

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// FILTER - Equality and logical-OR predicates
// =============================================================================

// Filter is a predicate tree. A leaf compares Column with Value; a branch
// combines children with Or (any) or And (all).
type Filter struct {
	Column string
	Value  any
	Or     []Filter
	And    []Filter
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Filter { return Filter{Column: column, Value: value} }

// Or matches rows that satisfy any of the filters.
func Or(filters ...Filter) Filter { return Filter{Or: filters} }

// And matches rows that satisfy all of the filters.
func And(filters ...Filter) Filter { return Filter{And: filters} }

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Column == "" && len(f.Or) == 0 && len(f.And) == 0
}

// Match evaluates the filter against a row. Values are compared by their
// string form so that "2" and 2 are equal, matching REST query semantics.
func (f Filter) Match(row Row) bool {
	switch {
	case len(f.Or) > 0:
		for _, child := range f.Or {
			if child.Match(row) {
				return true
			}
		}
		return false
	case len(f.And) > 0:
		for _, child := range f.And {
			if !child.Match(row) {
				return false
			}
		}
		return true
	case f.Column == "":
		return true
	}
	v, ok := row[f.Column]
	if !ok || v == nil {
		return f.Value == nil
	}
	if f.Value == nil {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(f.Value)
}

// Columns returns every column referenced by the filter, sorted.
func (f Filter) Columns() []string {
	seen := map[string]bool{}
	var walk func(Filter)
	walk = func(n Filter) {
		if n.Column != "" {
			seen[n.Column] = true
		}
		for _, c := range n.Or {
			walk(c)
		}
		for _, c := range n.And {
			walk(c)
		}
	}
	walk(f)
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (f Filter) String() string {
	switch {
	case len(f.Or) > 0:
		return "or(" + joinFilters(f.Or) + ")"
	case len(f.And) > 0:
		return "and(" + joinFilters(f.And) + ")"
	case f.Column == "":
		return "*"
	}
	return fmt.Sprintf("%s.eq.%v", f.Column, f.Value)
}

func joinFilters(fs []Filter) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore reads and writes rows in named tables.
type RecordStore interface {
	// Select returns the rows of table matching filter. The zero filter reads the whole table.
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)

	// Upsert inserts rows, updating existing rows that collide on conflictKeys.
	Upsert(ctx context.Context, table string, rows []Row, conflictKeys []string) error
}

// TxRecordStore wraps RecordStore with transaction support.
// Use this when several upserts must land together (a leave request header
// and its day lines).
type TxRecordStore interface {
	RecordStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed store is rolled back.
	WithTx(ctx context.Context, fn func(RecordStore) error) error
}
