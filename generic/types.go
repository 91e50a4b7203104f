/*
Package generic provides the shared core of the consolidation toolchain.

PURPOSE:
  This package holds the domain-agnostic pieces every stage relies on:
  the error taxonomy, the per-stage success/failure tally, the record store
  interfaces through which the hosted database is reached, and the date
  primitives used by the leave migration.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tally: Aggregate {succeeded, failed, skipped} reported by every stage
  - Row: One record read from or written to the record store
  - StageName: Identifies which batch stage produced a result

DESIGN PRINCIPLES:
  1. Per-unit isolation: One failed table, file or identity never aborts a batch
  2. Honest reporting: Partial success is always visible in the Tally
  3. Explicit dependencies: Stores and config are injected, never global

SEE ALSO:
  - errors.go: Error taxonomy (transport, parse, identity, file I/O, verification)
  - store.go: RecordStore / TxRecordStore interfaces and Filter predicates
  - time.go, period.go: Calendar dates and date ranges
*/
package generic

import "fmt"

// =============================================================================
// STAGES
// =============================================================================

type StageName string

const (
	StageSnapshot  StageName = "snapshot"
	StageScan      StageName = "scan"
	StageRewrite   StageName = "rewrite"
	StageVerify    StageName = "verify"
	StageResolve   StageName = "resolve"
	StageNormalize StageName = "normalize"
	StageImport    StageName = "import"
)

// =============================================================================
// TALLY - Explicit success/failure summary for a stage
// =============================================================================

// Tally counts the outcome of every unit processed by a stage.
// A unit is a table (snapshot), a file (scan, rewrite) or a record (import).
type Tally struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (t *Tally) Succeed()     { t.Succeeded++ }
func (t *Tally) Fail()        { t.Failed++ }
func (t *Tally) Skip()        { t.Skipped++ }
func (t Tally) Total() int    { return t.Succeeded + t.Failed + t.Skipped }
func (t Tally) OK() bool      { return t.Failed == 0 }
func (t Tally) Partial() bool { return t.Failed > 0 && t.Succeeded > 0 }

// Add merges another tally into this one.
func (t *Tally) Add(other Tally) {
	t.Succeeded += other.Succeeded
	t.Failed += other.Failed
	t.Skipped += other.Skipped
}

func (t Tally) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped (of %d)",
		t.Succeeded, t.Failed, t.Skipped, t.Total())
}

// =============================================================================
// ROW - Untyped record exchanged with the record store
// =============================================================================

// Row is a single record keyed by column name.
type Row map[string]any

// String returns the column value as a string, or "" when absent or nil.
func (r Row) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
