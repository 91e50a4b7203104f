package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive date range. A leave request header spans the
// period from its earliest to its latest day.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// SpanOf returns the smallest period containing every point.
// Order of the input does not matter. ok is false for an empty input.
func SpanOf(points []TimePoint) (p Period, ok bool) {
	for i, tp := range points {
		if i == 0 {
			p = Period{Start: tp, End: tp}
			continue
		}
		if tp.Before(p.Start) {
			p.Start = tp
		}
		if tp.After(p.End) {
			p.End = tp
		}
	}
	return p, len(points) > 0
}

// Valid reports whether the period does not end before it starts.
func (p Period) Valid() bool { return p.Start.BeforeOrEqual(p.End) }

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
