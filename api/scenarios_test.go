/*
scenarios_test.go - Unit tests for canned review sessions

PURPOSE:
	Tests that each scenario loads and produces the review state it
	describes: confidence levels, provisioning flags and parse warnings.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicManBen/CheckLoops/analyzer"
)

func TestScenarios_AllLoad(t *testing.T) {
	ts := setupTestServer(t, analyzer.Tree{Root: t.TempDir()})

	list := decode[[]ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios", nil))
	require.Len(t, list, len(scenarios))

	for _, s := range list {
		ts.loadScenario(t, s.ID)
		current := decode[ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios/current", nil))
		assert.Equal(t, s.ID, current.ID)
		assert.Positive(t, current.Accounts)
	}
}

func TestScenario_UnparseableValueFallsBack(t *testing.T) {
	// GIVEN: A history value of N/A for a duration-counted person
	// WHEN: Reading the import plan
	// THEN: The record is kept with a warning and nothing is blocked

	ts := setupTestServer(t, analyzer.Tree{Root: t.TempDir()})
	ts.loadScenario(t, "unparseable-value")

	plan := decode[StatementsResponse](t, ts.do(t, http.MethodGet, "/api/statements", nil))

	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, "Tom Donlan", plan.Warnings[0].LegacyName)
	assert.Zero(t, plan.Blocked)
	assert.Equal(t, 8, plan.Tally.Succeeded)
}

func TestScenario_UnknownStaffNeedsProvisioning(t *testing.T) {
	ts := setupTestServer(t, analyzer.Tree{Root: t.TempDir()})
	ts.loadScenario(t, "unknown-staff")

	resp := decode[MappingResponse](t, ts.do(t, http.MethodGet, "/api/mapping?pending=true", nil))

	require.Len(t, resp.Entries, 1)
	jo := resp.Entries[0]
	assert.Equal(t, "Jo O'Neill", jo.LegacyName)
	assert.True(t, jo.NeedsProvisioning)
	assert.True(t, jo.HasHistoricalRecords)
	assert.Equal(t, "jo.oneill@stoke.nhs.uk", jo.SuggestedEmail)
}

func TestLoadScenario_Unknown(t *testing.T) {
	ts := setupTestServer(t, analyzer.Tree{Root: t.TempDir()})

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
