package identity_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/generic/store"
	"github.com/MagicManBen/CheckLoops/identity"
)

var canonical = []identity.Account{
	{ID: "id1", DisplayName: "Benjamin Howard"},
	{ID: "id2", DisplayName: "Tom Donlan"},
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_ExactAndPartial(t *testing.T) {
	// GIVEN: Canonical accounts "Benjamin Howard" and "Tom Donlan"
	// WHEN: Resolving "Ben Howard" and "Tom Donlan"
	// THEN: "Ben Howard" is a partial match to id1, "Tom Donlan" an exact match to id2

	r := identity.NewResolver(canonical)

	ben := r.Resolve("Ben Howard")
	assert.Equal(t, identity.ConfidencePartial, ben.Confidence)
	assert.Equal(t, "id1", ben.AccountID)

	tom := r.Resolve("Tom Donlan")
	assert.Equal(t, identity.ConfidenceExact, tom.Confidence)
	assert.Equal(t, "id2", tom.AccountID)
}

func TestResolve_ExactIsCaseSensitive(t *testing.T) {
	r := identity.NewResolver(canonical)

	id := r.Resolve("tom donlan")

	assert.Equal(t, identity.ConfidencePartial, id.Confidence)
	assert.Equal(t, "id2", id.AccountID)
}

func TestResolve_NoMatch(t *testing.T) {
	r := identity.NewResolver(canonical)

	id := r.Resolve("Sarah Jones")

	assert.Equal(t, identity.ConfidenceNone, id.Confidence)
	assert.Empty(t, id.AccountID)
	assert.Empty(t, id.Candidates)
}

func TestResolve_IsDeterministicAndListsCandidates(t *testing.T) {
	// GIVEN: Two accounts that both contain the legacy name
	// WHEN: Resolving the same name repeatedly
	// THEN: The first account in canonical order wins every time

	r := identity.NewResolver([]identity.Account{
		{ID: "a", DisplayName: "Benjamin Howard"},
		{ID: "b", DisplayName: "Ben Howard-Smith"},
	})

	first := r.Resolve("Ben Howard")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Resolve("Ben Howard"))
	}
	assert.Equal(t, "a", first.AccountID)
	assert.Len(t, first.Candidates, 2)
}

func TestLoadAccounts_ReadsCanonicalTable(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("master_users",
		generic.Row{"auth_user_id": "id1", "full_name": "Benjamin Howard"},
		generic.Row{"auth_user_id": "", "full_name": "No Login"},
		generic.Row{"auth_user_id": "id2", "full_name": "Tom Donlan"},
	)

	accounts, err := identity.LoadAccounts(context.Background(), mem, identity.AccountSource{
		Table: "master_users", IDColumn: "auth_user_id", NameColumn: "full_name",
	})

	require.NoError(t, err)
	assert.Equal(t, canonical, accounts)
}

// =============================================================================
// MAPPING
// =============================================================================

func TestMap_FlagsReviewHistoryAndProvisioning(t *testing.T) {
	r := identity.NewResolver(canonical)

	m := r.Map([]string{"Ben Howard", "Tom Donlan"}, []string{"Tom Donlan", "Amy O'Neil"}, "stoke.nhs.uk")
	entries := m.Entries()

	require.Len(t, entries, 3)

	ben := entries[0]
	assert.True(t, ben.NeedsManualReview)
	assert.False(t, ben.HasHistoricalRecords)
	assert.False(t, ben.Usable())
	assert.Equal(t, "ben.howard@stoke.nhs.uk", ben.SuggestedEmail)

	tom := entries[1]
	assert.False(t, tom.NeedsManualReview)
	assert.True(t, tom.HasHistoricalRecords)
	assert.True(t, tom.Usable())

	amy := entries[2]
	assert.True(t, amy.NeedsProvisioning)
	assert.True(t, amy.HasHistoricalRecords)
	assert.Equal(t, "amy.oneil@stoke.nhs.uk", amy.SuggestedEmail)

	assert.Equal(t, generic.Tally{Succeeded: 1, Skipped: 2}, m.Tally())
}

func TestMapping_ConfirmUnlocksWrites(t *testing.T) {
	// GIVEN: A partial match
	// WHEN: A reviewer confirms it
	// THEN: The account becomes usable for writes

	m := identity.NewResolver(canonical).Map([]string{"Ben Howard"}, nil, "")

	_, err := m.AccountFor("Ben Howard")
	require.True(t, errors.Is(err, generic.ErrAmbiguousIdentity))

	entry, err := m.Confirm("Ben Howard", "id1")
	require.NoError(t, err)
	assert.True(t, entry.Confirmed)

	id, err := m.AccountFor("Ben Howard")
	require.NoError(t, err)
	assert.Equal(t, "id1", id)
	assert.Empty(t, m.Pending())
}

func TestMapping_ConfirmErrors(t *testing.T) {
	m := identity.NewResolver(canonical).Map([]string{"Ben Howard"}, nil, "")

	_, err := m.Confirm("Ben Howard", " ")
	assert.ErrorIs(t, err, identity.ErrNoAccount)

	_, err = m.Confirm("Nobody", "id9")
	assert.True(t, generic.IsNotFound(err))

	_, err = m.AccountFor("Nobody")
	assert.True(t, errors.Is(err, generic.ErrAmbiguousIdentity))
}

func TestMapping_CSVRoundTripKeepsReviewerEdits(t *testing.T) {
	m := identity.NewResolver(canonical).Map([]string{"Ben Howard", "Tom Donlan"}, []string{"Tom Donlan"}, "stoke.nhs.uk")
	_, err := m.Confirm("Ben Howard", "id1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.WriteCSV(&buf))

	loaded, err := identity.ReadCSV(&buf)
	require.NoError(t, err)

	ben, ok := loaded.Lookup("Ben Howard")
	require.True(t, ok)
	assert.True(t, ben.Confirmed)
	assert.Equal(t, "id1", ben.CanonicalID)
	assert.Equal(t, identity.ConfidencePartial, ben.Confidence)

	tom, ok := loaded.Lookup("Tom Donlan")
	require.True(t, ok)
	assert.True(t, tom.HasHistoricalRecords)
	assert.True(t, tom.Usable())
}

func TestReadCSV_RejectsBadFlags(t *testing.T) {
	in := "legacy_name,canonical_id,display_name,confidence,needs_manual_review,has_historical_records,needs_provisioning,suggested_email,confirmed\n" +
		"Ben,,,none,maybe,false,true,,false\n"

	_, err := identity.ReadCSV(bytes.NewBufferString(in))

	assert.True(t, errors.Is(err, generic.ErrParse))
}
