package migration

import (
	"errors"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/sheet"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Kind is what a normalized entity describes.
type Kind string

const (
	KindEntitlement Kind = "entitlement"
	KindSchedule    Kind = "schedule"
	KindHistory     Kind = "history"
)

// Entity is one normalized fact about a person. Created by Normalize and
// never modified afterwards.
type Entity struct {
	LegacyName string              `json:"legacy_name"`
	AccountID  string              `json:"account_id,omitempty"`
	Confidence identity.Confidence `json:"confidence"`

	// Usable is true when the identity is exact or confirmed; statements
	// for other identities are emitted blocked.
	Usable bool `json:"usable"`

	Kind     Kind               `json:"kind"`
	Quantity Quantity           `json:"quantity"`
	Year     int                `json:"year,omitempty"`
	Weekday  string             `json:"weekday,omitempty"`
	Date     *generic.TimePoint `json:"date,omitempty"`
	Line     int                `json:"source_line"`
	Warnings []string           `json:"warnings,omitempty"`
}

// Warning is a parse fallback or a dropped input, reported with its source line.
type Warning struct {
	LegacyName string `json:"legacy_name"`
	Kind       Kind   `json:"kind"`
	Line       int    `json:"line"`
	Message    string `json:"message"`
}

// Normalized is the output of Normalize.
type Normalized struct {
	Entities []Entity         `json:"entities"`
	Shapes   map[string]Shape `json:"shapes"`
	Warnings []Warning        `json:"warnings"`
	Tally    generic.Tally    `json:"tally"`

	// Err aggregates parse errors of inputs that produced no entity.
	Err error `json:"-"`
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator normalizes a workbook against the identity mapping.
type Orchestrator struct {
	classifier Classifier
	parser     Parser
	year       int
	logger     *zap.Logger
}

func NewOrchestrator(classifier Classifier, parser Parser, year int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{classifier: classifier, parser: parser, year: year, logger: logger}
}

// Normalize produces entitlement, schedule and history entities. A nil
// mapping leaves every identity unresolved.
func (o *Orchestrator) Normalize(wb *sheet.Workbook, mapping *identity.Mapping) *Normalized {
	out := &Normalized{Shapes: o.classifier.Shapes(wb.Staff)}
	for _, name := range wb.HistoryNames() {
		if _, ok := out.Shapes[name]; !ok {
			out.Shapes[name] = ShapeDuration
		}
	}

	base := func(name string, kind Kind, line int) Entity {
		e := Entity{LegacyName: name, Kind: kind, Line: line, Confidence: identity.ConfidenceNone}
		if mapping != nil {
			if m, ok := mapping.Lookup(name); ok {
				e.AccountID = m.CanonicalID
				e.Confidence = m.Confidence
				e.Usable = m.Usable()
			}
		}
		return e
	}
	add := func(e Entity, q Quantity, err error) {
		e.Quantity = q
		if err != nil {
			e.Warnings = append(e.Warnings, err.Error())
			out.Warnings = append(out.Warnings, Warning{LegacyName: e.LegacyName, Kind: e.Kind, Line: e.Line, Message: err.Error()})
		}
		out.Entities = append(out.Entities, e)
		out.Tally.Succeed()
	}

	for _, s := range wb.Staff {
		shape := out.Shapes[s.Name]
		if s.Entitlement != "" {
			e := base(s.Name, KindEntitlement, s.Line)
			e.Year = o.year
			q, err := o.parser.Parse("entitlement", s.Entitlement, shape)
			add(e, q, err)
		}
		cells := s.NonClinical
		if shape == ShapeSession {
			cells = s.Clinical
		}
		for i, day := range generic.Workweek {
			if cells[i] == "" {
				continue
			}
			e := base(s.Name, KindSchedule, s.Line)
			e.Weekday = generic.WeekdayColumn(day)
			q, err := o.parser.Parse(e.Weekday, cells[i], shape)
			add(e, q, err)
		}
	}

	for _, h := range wb.History {
		date, err := generic.ParseDate(h.Date)
		if err != nil {
			// A day without a date has no detail key or range position, so the
			// record is excluded from the import and reported instead.
			o.logger.Warn("normalize: history record excluded",
				zap.String("identity", h.Name), zap.Int("line", h.Line), zap.Error(err))
			out.Warnings = append(out.Warnings, Warning{
				LegacyName: h.Name, Kind: KindHistory, Line: h.Line,
				Message: ExcludedPrefix + err.Error(),
			})
			out.Err = multierr.Append(out.Err, err)
			out.Tally.Fail()
			continue
		}
		e := base(h.Name, KindHistory, h.Line)
		e.Date = &date
		q, err := o.parser.Parse("value", h.Value, out.Shapes[h.Name])
		add(e, q, err)
	}

	o.logger.Info("normalize: done",
		zap.Int("entities", len(out.Entities)),
		zap.Int("warnings", len(out.Warnings)),
		zap.Stringer("tally", out.Tally))
	return out
}

// ExcludedPrefix marks warnings for input records that produced no entity.
const ExcludedPrefix = "record excluded: "

// Excluded returns the warnings for input records that produced no entity.
// Together with Entities they account for every input record.
func (n *Normalized) Excluded() []Warning {
	var out []Warning
	for _, w := range n.Warnings {
		if strings.HasPrefix(w.Message, ExcludedPrefix) {
			out = append(out, w)
		}
	}
	return out
}

// Fallbacks returns the entities whose value was replaced by a default.
func (n *Normalized) Fallbacks() []Entity {
	var out []Entity
	for _, e := range n.Entities {
		if len(e.Warnings) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// ByIdentity returns the entities of one person in input order.
func (n *Normalized) ByIdentity(name string) []Entity {
	var out []Entity
	for _, e := range n.Entities {
		if e.LegacyName == name {
			out = append(out, e)
		}
	}
	return out
}

// IsParseFallback reports whether err came from a value fallback.
func IsParseFallback(err error) bool { return errors.Is(err, generic.ErrParse) }
