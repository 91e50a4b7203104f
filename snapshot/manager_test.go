package snapshot_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/generic/store"
	"github.com/MagicManBen/CheckLoops/snapshot"
)

func fixedClock() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

func TestSnapshot_FailedTableDoesNotStopOthers(t *testing.T) {
	// GIVEN: Three tables, one of which cannot be read
	// WHEN: Taking a snapshot
	// THEN: The two readable tables are captured and the failure is recorded

	mem := store.NewMemory()
	mem.Seed("profiles", generic.Row{"id": "1", "full_name": "Tom Donlan"})
	mem.Seed("kiosk_users", generic.Row{"id": "7"})
	mem.Seed("onboarding")
	mem.FailOn("kiosk_users", errors.New("connection reset"))

	m := snapshot.NewManager(mem, afs.New(), t.TempDir(), nil).WithClock(fixedClock)
	snap := m.Snapshot(context.Background(), []string{"profiles", "kiosk_users", "onboarding"})

	assert.Equal(t, generic.Tally{Succeeded: 2, Failed: 1}, snap.Tally)
	assert.Len(t, snap.Tables["profiles"].Rows, 1)
	assert.True(t, snap.Tables["kiosk_users"].Failed())
	assert.Empty(t, snap.Tables["onboarding"].Rows)
	assert.False(t, snap.Tables["onboarding"].Failed())
	assert.True(t, errors.Is(snap.Err, generic.ErrTransport))
}

func TestSnapshot_SaveAndLoad(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed("profiles", generic.Row{"id": "1"})
	mem.FailOn("user_roles", errors.New("permission denied"))
	dir := t.TempDir()

	m := snapshot.NewManager(mem, afs.New(), dir, nil).WithClock(fixedClock)
	snap := m.Snapshot(context.Background(), []string{"profiles", "user_roles"})

	location, err := m.Save(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "snapshot_20250314_093000.json", filepath.Base(location))

	loaded, err := m.Load(context.Background(), location)
	require.NoError(t, err)
	assert.True(t, loaded.Timestamp.Equal(snap.Timestamp))
	assert.Equal(t, "1", loaded.Tables["profiles"].Rows[0].String("id"))
	assert.Contains(t, loaded.Tables["user_roles"].Error, "permission denied")
	assert.Equal(t, generic.Tally{Succeeded: 1, Failed: 1}, loaded.Tally)
}
