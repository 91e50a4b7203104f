/*
Package migration turns legacy spreadsheet records into canonical statements.

PURPOSE:
  Legacy leave data comes in two incompatible shapes. Clinicians book
  leave in sessions ("1", "2"); everyone else in hours ("07:30"). The
  migration decides the shape once per person, parses every value under
  that shape and emits idempotent upserts for the canonical tables.

PIPELINE:
  sheet.Workbook ─► Normalize ─► []Entity ─► Emit ─► []Statement ─► Import
                       │                      │
                 Classifier/Parser          Group (history → header + days)

KEY CONCEPTS IN THIS FILE (quantity.go):
  - Shape: session or duration, decided by the Classifier
  - Quantity: sealed variant; exactly one of Session or Duration

INVARIANTS:
  1. Every entity carries exactly one quantity shape
  2. All entities of one person share the same shape
  3. A value that cannot be parsed falls back to the documented default
     with a warning; it is never dropped
  4. A history group has one detail line per input record

SEE ALSO:
  - classify.go: Shape decision
  - parse.go: Value parsing and fallbacks
  - normalize.go, group.go, emit.go, importer.go: Pipeline stages
*/
package migration

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Shape is the unit family a person's leave is counted in.
type Shape string

const (
	ShapeSession  Shape = "session"
	ShapeDuration Shape = "duration"
)

// Quantity is either a Session or a Duration.
type Quantity interface {
	Shape() Shape
	String() string
	isQuantity()
}

// =============================================================================
// SESSION
// =============================================================================

// Session counts clinical sessions (half days).
type Session struct {
	Count decimal.Decimal
}

func (Session) Shape() Shape     { return ShapeSession }
func (Session) isQuantity()      {}
func (s Session) String() string { return s.Count.String() + " session(s)" }

func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"shape": ShapeSession, "count": s.Count})
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a length of working time. Hours may exceed 24 for totals.
type Duration struct {
	Hours   int
	Minutes int
}

func (Duration) Shape() Shape { return ShapeDuration }
func (Duration) isQuantity()  {}

func (d Duration) String() string { return fmt.Sprintf("%dh%02d", d.Hours, d.Minutes) }

// Interval renders the duration as a SQL interval literal, HH:MM:SS.
func (d Duration) Interval() string { return fmt.Sprintf("%02d:%02d:00", d.Hours, d.Minutes) }

// DecimalHours returns the duration in hours, rounded to two places.
func (d Duration) DecimalHours() decimal.Decimal {
	return decimal.NewFromInt(int64(d.Hours)).
		Add(decimal.NewFromInt(int64(d.Minutes)).Div(decimal.NewFromInt(60))).
		Round(2)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"shape": ShapeDuration, "hours": d.Hours, "minutes": d.Minutes})
}
