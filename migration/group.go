package migration

import (
	"sort"

	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
)

// HistoryGroup is one person's historical leave: a header spanning the
// earliest to the latest day, and one detail per input record.
type HistoryGroup struct {
	LegacyName string              `json:"legacy_name"`
	AccountID  string              `json:"account_id,omitempty"`
	Confidence identity.Confidence `json:"confidence"`
	Usable     bool                `json:"usable"`
	Range      generic.Period      `json:"range"`
	Days       []Entity            `json:"days"`
}

// Group coalesces history entities per person, in order of first appearance.
// Days are sorted by date; records sharing a date keep their input order and
// each still gets its own detail line.
func Group(entities []Entity) []HistoryGroup {
	var (
		groups []HistoryGroup
		index  = map[string]int{}
	)
	for _, e := range entities {
		if e.Kind != KindHistory || e.Date == nil {
			continue
		}
		i, ok := index[e.LegacyName]
		if !ok {
			i = len(groups)
			index[e.LegacyName] = i
			groups = append(groups, HistoryGroup{
				LegacyName: e.LegacyName,
				AccountID:  e.AccountID,
				Confidence: e.Confidence,
				Usable:     e.Usable,
			})
		}
		groups[i].Days = append(groups[i].Days, e)
	}
	for i := range groups {
		days := groups[i].Days
		sort.SliceStable(days, func(a, b int) bool { return days[a].Date.Before(*days[b].Date) })
		points := make([]generic.TimePoint, len(days))
		for j, d := range days {
			points[j] = *d.Date
		}
		groups[i].Range, _ = generic.SpanOf(points)
	}
	return groups
}
