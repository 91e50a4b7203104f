package migration

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// PARSER - Raw cell → Quantity
// =============================================================================
//
// Rules, in order:
//   1. A value containing ':' is a duration: H:MM, H:MM:SS, or the
//      spreadsheet form "N days, HH:MM:SS" (N*24 + HH hours)
//   2. A plain non-negative number is a session count
//   3. Anything else is replaced by the default for the person's shape
//
// A value whose lexical shape disagrees with the person's shape also
// falls back. Every fallback returns a *generic.ParseError alongside the
// substituted quantity so that callers can attach a warning.

var (
	clockPattern = regexp.MustCompile(`^(\d+):([0-5]\d)(?::([0-5]\d)(?:\.\d+)?)?$`)
	daysPattern  = regexp.MustCompile(`^(\d+)\s+days?,?\s+(\d+):([0-5]\d)(?::([0-5]\d)(?:\.\d+)?)?$`)
)

// maxDurationHours bounds any single value: no entitlement, schedule cell
// or history day spans more than a leap year.
const maxDurationHours = 366 * 24

// Parser parses raw cells with documented defaults.
type Parser struct {
	DefaultDuration Duration
	DefaultSession  Session
}

// DefaultParser falls back to a standard 8-hour day or a single session.
func DefaultParser() Parser {
	return Parser{
		DefaultDuration: Duration{Hours: 8},
		DefaultSession:  Session{Count: decimal.NewFromInt(1)},
	}
}

// Default returns the fallback quantity for a shape.
func (p Parser) Default(shape Shape) Quantity {
	if shape == ShapeSession {
		return p.DefaultSession
	}
	return p.DefaultDuration
}

// Parse reads raw under shape. The returned quantity is always usable;
// a non-nil error means it is the default.
func (p Parser) Parse(field, raw string, shape Shape) (Quantity, error) {
	value := strings.TrimSpace(raw)
	fallback := func(cause string) (Quantity, error) {
		return p.Default(shape), &generic.ParseError{Field: field, Raw: raw, Cause: cause}
	}

	if strings.Contains(value, ":") {
		d, ok := parseDuration(value)
		if !ok {
			return fallback("malformed duration")
		}
		if shape != ShapeDuration {
			return fallback("duration given for a session-counted person")
		}
		return d, nil
	}
	if n, err := decimal.NewFromString(value); err == nil {
		if n.IsNegative() {
			return fallback("negative value")
		}
		if shape != ShapeSession {
			return fallback("session count given for a duration-counted person")
		}
		return Session{Count: n}, nil
	}
	if value == "" {
		return fallback("empty value")
	}
	return fallback("neither a duration nor a number")
}

func parseDuration(value string) (Duration, bool) {
	days := 0
	var m []string
	if m = daysPattern.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > maxDurationHours/24 {
			return Duration{}, false
		}
		days = n
		m = m[1:]
	} else if m = clockPattern.FindStringSubmatch(value); m == nil {
		return Duration{}, false
	}
	hours, err := strconv.Atoi(m[1])
	if err != nil || hours > maxDurationHours {
		return Duration{}, false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return Duration{}, false
	}
	total := days*24 + hours
	if total > maxDurationHours || (total == maxDurationHours && minutes > 0) {
		return Duration{}, false
	}
	return Duration{Hours: total, Minutes: minutes}, true
}
