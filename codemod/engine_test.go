package codemod_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/generic"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func backupsOf(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + analyzer.BackupMarker + "*")
	require.NoError(t, err)
	return matches
}

// =============================================================================
// REWRITE THEN VERIFY
// =============================================================================

func TestEngine_RewriteBacksUpAndVerifies(t *testing.T) {
	// GIVEN: A file referencing the deprecated table twice
	// WHEN: The engine rewrites it and the tree is verified
	// THEN: 2 changes are recorded, one backup holds the original and no residue remains

	dir := t.TempDir()
	original := "const a = db.from('profiles').select('*');\nconst b = db.from('profiles').delete();\n"
	path := writeSource(t, dir, "app.js", original)

	fs := afs.New()
	engine := codemod.NewEngine(fs, codemod.NewFileBackups(fs), codemod.NewMemoryLedger(), nil,
		codemod.WithClock(clock), codemod.WithRunID("20250314_093000_test0001"))

	result := engine.Apply(context.Background(), []string{path}, defaultRules(t, "profiles"))

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Changes[path])
	assert.Equal(t, 2, result.PerRule["profiles/call"])
	assert.Equal(t, []string{path}, result.Updated)
	assert.Equal(t, 1, result.BackupsCreated)

	backups := backupsOf(t, path)
	require.Len(t, backups, 1)
	saved, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, original, string(saved))

	v, err := analyzer.New(fs, nil).Verify(context.Background(), analyzer.Tree{Root: dir}, []string{"profiles"}, false)
	require.NoError(t, err)
	assert.True(t, v.Pass)
	assert.Empty(t, v.Residual)
}

func TestEngine_SecondRunIsNoOp(t *testing.T) {
	// GIVEN: A tree that was already rewritten
	// WHEN: The same rule set is applied again by a new run
	// THEN: No file changes and no new backup is written

	dir := t.TempDir()
	path := writeSource(t, dir, "app.js", "db.from('profiles')\n")
	fs := afs.New()
	ledger := codemod.NewMemoryLedger()
	rs := defaultRules(t, "profiles")

	first := codemod.NewEngine(fs, codemod.NewFileBackups(fs), ledger, nil, codemod.WithRunID("20250314_093000_run00001"))
	require.NoError(t, first.Apply(context.Background(), []string{path}, rs).Err)

	second := codemod.NewEngine(fs, codemod.NewFileBackups(fs), ledger, nil, codemod.WithRunID("20250314_093100_run00002"))
	result := second.Apply(context.Background(), []string{path}, rs)

	require.NoError(t, result.Err)
	assert.Zero(t, result.TotalChanges())
	assert.Zero(t, result.BackupsCreated)
	assert.Equal(t, 1, result.Tally.Skipped)
	assert.Len(t, backupsOf(t, path), 1)
}

func TestEngine_IdempotentWithoutLedger(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "app.js", "db.from('profiles')\n")
	fs := afs.New()
	rs := defaultRules(t, "profiles")

	codemod.NewEngine(fs, codemod.NewFileBackups(fs), nil, nil, codemod.WithRunID("20250314_093000_run00001")).
		Apply(context.Background(), []string{path}, rs)
	result := codemod.NewEngine(fs, codemod.NewFileBackups(fs), nil, nil, codemod.WithRunID("20250314_093100_run00002")).
		Apply(context.Background(), []string{path}, rs)

	assert.Zero(t, result.TotalChanges())
	assert.Len(t, backupsOf(t, path), 1)
}

func TestEngine_FailedFileDoesNotStopBatch(t *testing.T) {
	// GIVEN: A missing file listed before a readable one
	// WHEN: Applying the rule set
	// THEN: The missing file is reported and the readable file is still rewritten

	dir := t.TempDir()
	missing := filepath.Join(dir, "a_missing.js")
	path := writeSource(t, dir, "b.js", "db.from('profiles')\n")
	fs := afs.New()

	result := codemod.NewEngine(fs, codemod.NewFileBackups(fs), nil, nil).
		Apply(context.Background(), []string{missing, path}, defaultRules(t, "profiles"))

	assert.True(t, errors.Is(result.Err, generic.ErrFileIO))
	assert.Equal(t, 1, result.Tally.Failed)
	assert.Equal(t, 1, result.Tally.Succeeded)
	assert.Equal(t, 1, result.Changes[path])
}

func TestEngine_RestoreWritesBackBackup(t *testing.T) {
	dir := t.TempDir()
	original := "db.from('profiles')\n"
	path := writeSource(t, dir, "app.js", original)
	fs := afs.New()
	engine := codemod.NewEngine(fs, codemod.NewFileBackups(fs), nil, nil)

	engine.Apply(context.Background(), []string{path}, defaultRules(t, "profiles"))
	rewritten, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEqual(t, original, string(rewritten))

	record, err := engine.Restore(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, engine.RunID(), record.RunID)

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))
}

func TestEngine_RestoreWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "app.js", "x\n")
	fs := afs.New()

	_, err := codemod.NewEngine(fs, codemod.NewFileBackups(fs), nil, nil).Restore(context.Background(), path)
	assert.True(t, generic.IsNotFound(err))
}
