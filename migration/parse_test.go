package migration_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/migration"
)

func TestParse_Durations(t *testing.T) {
	p := migration.DefaultParser()

	tests := []struct {
		raw  string
		want migration.Duration
	}{
		{"08:00", migration.Duration{Hours: 8}},
		{"7:30", migration.Duration{Hours: 7, Minutes: 30}},
		{"07:30:00", migration.Duration{Hours: 7, Minutes: 30}},
		{"224:00:00", migration.Duration{Hours: 224}},
		{"9 days, 08:00:00", migration.Duration{Hours: 224}},
		{"1 day 04:15:00", migration.Duration{Hours: 28, Minutes: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := p.Parse("value", tt.raw, migration.ShapeDuration)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestParse_FallbackToStandardDay(t *testing.T) {
	// GIVEN: A value that is neither a duration nor a number
	// WHEN: Parsing it for a duration-counted person
	// THEN: The standard 8-hour day is returned with a parse error

	q, err := migration.DefaultParser().Parse("value", "N/A", migration.ShapeDuration)

	assert.Equal(t, migration.Duration{Hours: 8}, q)
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrParse))
	assert.True(t, migration.IsParseFallback(err))
}

func TestParse_Sessions(t *testing.T) {
	p := migration.DefaultParser()

	q, err := p.Parse("value", "2", migration.ShapeSession)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(q.(migration.Session).Count))

	q, err = p.Parse("value", "0.5", migration.ShapeSession)
	require.NoError(t, err)
	assert.Equal(t, "0.5", q.(migration.Session).Count.String())
}

func TestParse_ShapeMismatchFallsBack(t *testing.T) {
	p := migration.DefaultParser()

	q, err := p.Parse("value", "07:30", migration.ShapeSession)
	assert.Error(t, err)
	assert.Equal(t, migration.ShapeSession, q.Shape())

	q, err = p.Parse("value", "3", migration.ShapeDuration)
	assert.Error(t, err)
	assert.Equal(t, migration.Duration{Hours: 8}, q)
}

func TestParse_MalformedAndNegative(t *testing.T) {
	p := migration.DefaultParser()

	for _, raw := range []string{"7:75", "ab:cd", "-1", ""} {
		_, err := p.Parse("value", raw, migration.ShapeSession)
		assert.Error(t, err, raw)
	}
}

func TestDuration_Renderings(t *testing.T) {
	d := migration.Duration{Hours: 7, Minutes: 30}

	assert.Equal(t, "07:30:00", d.Interval())
	assert.Equal(t, "7.5", d.DecimalHours().String())
	assert.Equal(t, "7h30", d.String())
}

func TestParse_OversizedDurationFallsBack(t *testing.T) {
	// GIVEN: Day counts and hours that overflow or exceed a year
	// WHEN: Parsing them for a duration-counted person
	// THEN: Each falls back to the standard day with a parse error

	p := migration.DefaultParser()
	for _, raw := range []string{
		"99999999999999999999 days, 08:00:00",
		"99999999999999999999:00",
		"400 days, 00:00:00",
		"365 days, 25:00:00",
		"8785:00",
	} {
		q, err := p.Parse("entitlement", raw, migration.ShapeDuration)
		assert.ErrorIs(t, err, generic.ErrParse, raw)
		assert.Equal(t, migration.Duration{Hours: 8}, q, raw)
	}

	q, err := p.Parse("entitlement", "366 days, 00:00:00", migration.ShapeDuration)
	require.NoError(t, err)
	assert.Equal(t, migration.Duration{Hours: 8784}, q)
}
