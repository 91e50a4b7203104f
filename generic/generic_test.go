package generic

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	row := Row{"role": "GP", "site_id": 2, "email": nil}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero matches everything", Filter{}, true},
		{"eq", Eq("role", "GP"), true},
		{"eq compares text form", Eq("site_id", "2"), true},
		{"eq mismatch", Eq("role", "Nurse"), false},
		{"nil matches null column", Eq("email", nil), true},
		{"nil matches missing column", Eq("phone", nil), true},
		{"value does not match null", Eq("email", "a@b"), false},
		{"or", Or(Eq("role", "Nurse"), Eq("role", "GP")), true},
		{"and", And(Eq("role", "GP"), Eq("site_id", 3)), false},
		{"nested", Or(And(Eq("role", "GP"), Eq("site_id", 2)), Eq("role", "Admin")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(row))
		})
	}
}

func TestFilter_ColumnsAndString(t *testing.T) {
	f := Or(Eq("role", "GP"), And(Eq("site_id", 2), Eq("role", "Nurse")))

	assert.Equal(t, []string{"role", "site_id"}, f.Columns())
	assert.Equal(t, "or(role.eq.GP,and(site_id.eq.2,role.eq.Nurse))", f.String())
	assert.True(t, Filter{}.IsZero())
	assert.False(t, f.IsZero())
}

func TestParseDate_Layouts(t *testing.T) {
	for _, raw := range []string{"2024-04-01", "01/04/2024", "1/4/2024", "01-04-2024", " 2024-04-01 09:30:00 "} {
		t.Run(raw, func(t *testing.T) {
			tp, err := ParseDate(raw)
			require.NoError(t, err)
			assert.Equal(t, "2024-04-01", tp.String())
		})
	}

	_, err := ParseDate("next tuesday")
	assert.ErrorIs(t, err, ErrParse)
}

func TestSpanOf(t *testing.T) {
	// GIVEN: days out of order
	days := []TimePoint{MustParseDate("2024-04-03"), MustParseDate("2024-04-01"), MustParseDate("2024-04-02")}

	// WHEN
	p, ok := SpanOf(days)

	// THEN: the span covers first to last day, inclusive
	require.True(t, ok)
	assert.Equal(t, "[2024-04-01, 2024-04-03]", p.String())
	assert.Len(t, p.Days(), 3)
	assert.True(t, p.Contains(MustParseDate("2024-04-02")))
	assert.False(t, p.Contains(MustParseDate("2024-04-04")))

	_, ok = SpanOf(nil)
	assert.False(t, ok)
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Succeed()
	tally.Succeed()
	tally.Skip()
	assert.True(t, tally.OK())
	assert.False(t, tally.Partial())

	tally.Add(Tally{Failed: 1})
	assert.False(t, tally.OK())
	assert.True(t, tally.Partial())
	assert.Equal(t, 4, tally.Total())
	assert.Equal(t, "2 succeeded, 1 failed, 1 skipped (of 4)", tally.String())
}

func TestErrorClassification(t *testing.T) {
	transport := &TransportError{Table: "kiosk_users", Op: "select", Err: errors.New("timeout")}
	wrapped := fmt.Errorf("snapshot: %w", transport)

	assert.ErrorIs(t, wrapped, ErrTransport)
	assert.False(t, IsFatal(wrapped))
	assert.False(t, NeedsHuman(wrapped))

	verification := &VerificationFailure{Residual: 3, Files: 2}
	assert.True(t, IsFatal(verification))
	assert.True(t, NeedsHuman(verification))

	ambiguous := &AmbiguousIdentityError{LegacyName: "Ben Howard", Confidence: "partial"}
	assert.True(t, NeedsHuman(ambiguous))
	assert.False(t, IsFatal(ambiguous))

	assert.True(t, IsNotFound(fmt.Errorf("%w: no backup", ErrNotFound)))
}
