package migration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// STATEMENTS - Idempotent upserts for the canonical tables
// =============================================================================

// Part says which step of the migration a statement belongs to.
type Part string

const (
	PartProfile Part = "profile" // entitlement and weekly schedule on the canonical user
	PartHeader  Part = "header"  // leave request spanning a history group
	PartDetail  Part = "detail"  // one day of a leave request
)

// Statement is one row upsert. Header and detail statements of the same
// history group share Group and are written together.
type Statement struct {
	Table        string      `json:"table"`
	Row          generic.Row `json:"row"`
	ConflictKeys []string    `json:"conflict_keys"`
	Part         Part        `json:"part"`
	Group        string      `json:"group,omitempty"`
	LegacyName   string      `json:"legacy_name"`

	// Blocked statements belong to an identity that still needs review.
	// They are rendered commented out and never imported.
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// Targets names the canonical tables and fixed column values.
type Targets struct {
	Users    string `yaml:"users"`
	Requests string `yaml:"requests"`
	Days     string `yaml:"days"`
	SiteID   int    `yaml:"site_id"`
	Status   string `yaml:"status"`
}

func DefaultTargets() Targets {
	return Targets{
		Users:    "master_users",
		Requests: "holiday_requests",
		Days:     "holiday_request_days",
		SiteID:   2,
		Status:   "approved",
	}
}

// keyNamespace scopes the natural keys of emitted rows.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://checkloops.app/legacy-leave"))

// RequestID is the natural key of a person's backfilled leave request.
func RequestID(legacyName string) string {
	return uuid.NewSHA1(keyNamespace, []byte("holiday_request|"+legacyName)).String()
}

// DayID is the natural key of one day line. ordinal distinguishes records
// sharing a date.
func DayID(requestID string, date generic.TimePoint, ordinal int) string {
	return uuid.NewSHA1(keyNamespace, []byte(fmt.Sprintf("%s|%s|%d", requestID, date, ordinal))).String()
}

// Emitter turns entities into statements.
type Emitter struct {
	targets Targets
}

func NewEmitter(targets Targets) *Emitter {
	return &Emitter{targets: targets}
}

// Emit returns, per person in order of first appearance, one profile
// statement (if the person has an entitlement or schedule) followed by the
// header and day statements of their history group.
func (em *Emitter) Emit(entities []Entity) []Statement {
	var (
		order    []string
		profiles = map[string]*Statement{}
	)
	seen := map[string]bool{}
	for _, e := range entities {
		if !seen[e.LegacyName] {
			seen[e.LegacyName] = true
			order = append(order, e.LegacyName)
		}
		if e.Kind != KindEntitlement && e.Kind != KindSchedule {
			continue
		}
		st, ok := profiles[e.LegacyName]
		if !ok {
			st = &Statement{
				Table:        em.targets.Users,
				Row:          generic.Row{"auth_user_id": e.AccountID},
				ConflictKeys: []string{"auth_user_id"},
				Part:         PartProfile,
				LegacyName:   e.LegacyName,
			}
			block(st, e)
			profiles[e.LegacyName] = st
		}
		switch e.Kind {
		case KindEntitlement:
			st.Row["holiday_year"] = e.Year
			setQuantity(st.Row, "annual", e.Quantity)
		case KindSchedule:
			setQuantity(st.Row, e.Weekday, e.Quantity)
		}
	}

	groups := map[string]HistoryGroup{}
	for _, g := range Group(entities) {
		groups[g.LegacyName] = g
	}

	var out []Statement
	for _, name := range order {
		if st, ok := profiles[name]; ok {
			out = append(out, *st)
		}
		if g, ok := groups[name]; ok {
			out = append(out, em.history(g)...)
		}
	}
	return out
}

func (em *Emitter) history(g HistoryGroup) []Statement {
	requestID := RequestID(g.LegacyName)
	header := Statement{
		Table: em.targets.Requests,
		Row: generic.Row{
			"id":         requestID,
			"user_id":    g.AccountID,
			"site_id":    em.targets.SiteID,
			"status":     em.targets.Status,
			"start_date": g.Range.Start.String(),
			"end_date":   g.Range.End.String(),
		},
		ConflictKeys: []string{"id"},
		Part:         PartHeader,
		Group:        requestID,
		LegacyName:   g.LegacyName,
	}
	if len(g.Days) > 0 {
		block(&header, g.Days[0])
	}
	out := []Statement{header}

	ordinals := map[string]int{}
	for _, day := range g.Days {
		date := day.Date.String()
		ordinal := ordinals[date]
		ordinals[date]++
		row := generic.Row{
			"id":                 DayID(requestID, *day.Date, ordinal),
			"holiday_request_id": requestID,
			"date":               date,
			"hours_requested":    Duration{}.Interval(),
			"sessions_requested": decimal.Zero,
		}
		switch q := day.Quantity.(type) {
		case Duration:
			row["hours_requested"] = q.Interval()
		case Session:
			row["sessions_requested"] = q.Count
		}
		out = append(out, Statement{
			Table:        em.targets.Days,
			Row:          row,
			ConflictKeys: []string{"id"},
			Part:         PartDetail,
			Group:        requestID,
			LegacyName:   g.LegacyName,
			Blocked:      header.Blocked,
			Reason:       header.Reason,
		})
	}
	return out
}

func setQuantity(row generic.Row, prefix string, q Quantity) {
	switch v := q.(type) {
	case Duration:
		row[prefix+"_hours"] = v.Interval()
	case Session:
		row[prefix+"_sessions"] = v.Count
	}
}

func block(st *Statement, e Entity) {
	if e.Usable {
		return
	}
	st.Blocked = true
	st.Reason = fmt.Sprintf("identity %q has %s confidence and is not confirmed", e.LegacyName, e.Confidence)
}

// =============================================================================
// SQL RENDERING
// =============================================================================

// SQL renders the statement as an upsert. Columns are sorted for stable output.
func (s Statement) SQL() string {
	cols := make([]string, 0, len(s.Row))
	for c := range s.Row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	values := make([]string, len(cols))
	for i, c := range cols {
		values[i] = literal(s.Row[c])
	}

	keys := map[string]bool{}
	for _, k := range s.ConflictKeys {
		keys[k] = true
	}
	var updates []string
	for _, c := range cols {
		if !keys[c] {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", s.Table, strings.Join(cols, ", "), strings.Join(values, ", "))
	if len(s.ConflictKeys) > 0 {
		fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(s.ConflictKeys, ", "))
		if len(updates) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET " + strings.Join(updates, ", "))
		}
	}
	b.WriteString(";")
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		if x == "" {
			return "NULL"
		}
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int:
		return fmt.Sprint(x)
	case int64:
		return fmt.Sprint(x)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}
