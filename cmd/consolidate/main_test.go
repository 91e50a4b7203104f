package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/config"
	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/store/sqlite"
)

const holidayExport = "Date,StaffName,Value,Name,Role,Entitlement," +
	"Dr Monday Hours,Dr Tuesday Hours,Dr Wednesday Hours,Dr Thursday Hours,Dr Friday Hours," +
	"Staff Monday Hours (HH:MM),Staff Tuesday Hours (HH:MM),Staff Wednesday Hours (HH:MM),Staff Thursday Hours (HH:MM),Staff Friday Hours (HH:MM)\n" +
	"2024-01-03,Amy Lee,07:30,Amy Lee,Nurse,187:30:00,,,,,,07:30,07:30,,07:30,\n"

// setupCLI points every configured path into a temp dir and returns a
// command whose output is captured.
func setupCLI(t *testing.T) (*cobra.Command, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()

	logger = zap.NewNop()
	dryRun, strict, reportOut, serveAddr, verifyEvery = false, false, "", "", "10m"

	cfg = config.Default()
	cfg.Store.Path = filepath.Join(dir, "data", "rehearsal.db")
	cfg.Tables.Deprecated = []string{"kiosk_users"}
	cfg.Tables.Snapshot = []string{"holiday_requests"}
	cfg.Snapshot.Dir = filepath.Join(dir, "backups")
	cfg.Tree.Root = filepath.Join(dir, "src")
	cfg.Codemod.StateDB = filepath.Join(dir, "data", "codemod.db")
	cfg.Codemod.Report = filepath.Join(dir, "reports", "rewrite.json")
	cfg.Verify.Report = filepath.Join(dir, "reports", "verification.json")
	cfg.Identity.MappingFile = filepath.Join(dir, "artifacts", "user_mapping.csv")
	cfg.Migration.Input = filepath.Join(dir, "input", "holidays.csv")
	cfg.Migration.Script = filepath.Join(dir, "artifacts", "holiday_import.sql")
	cfg.Migration.Statements = filepath.Join(dir, "artifacts", "statements.json")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	return cmd, out, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedAccounts(t *testing.T, rows ...generic.Row) {
	t.Helper()
	db, err := openSQLite(cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Upsert(context.Background(), "master_users", rows, []string{"auth_user_id"}))
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	db, err := sqlite.New(cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Select(context.Background(), table, generic.Filter{})
	require.NoError(t, err)
	return len(rows)
}

// =============================================================================
// TABLE HALF
// =============================================================================

func TestSnapshot_WritesDocument(t *testing.T) {
	cmd, out, _ := setupCLI(t)
	cfg.Tables.Deprecated = nil
	seedAccounts(t, generic.Row{"auth_user_id": "acc-amy", "full_name": "Amy Lee"})

	err := runSnapshot(cmd, nil)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "snapshot written to")
	entries, err := os.ReadDir(cfg.Snapshot.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnapshot_MissingTableFailsStage(t *testing.T) {
	cmd, _, _ := setupCLI(t)

	// GIVEN: kiosk_users does not exist in the rehearsal database
	err := runSnapshot(cmd, nil)

	// THEN: the other tables are still saved, but the stage fails
	assert.ErrorIs(t, err, errStageFailed)
	entries, readErr := os.ReadDir(cfg.Snapshot.Dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

// =============================================================================
// REWRITE HALF
// =============================================================================

func TestRewrite_VerifiesAndRestores(t *testing.T) {
	cmd, out, _ := setupCLI(t)
	original := "const { data } = await supabase.from('kiosk_users').select('*');\n"
	page := filepath.Join(cfg.Tree.Root, "app.js")
	writeFile(t, page, original)

	// WHEN: the tree is rewritten
	require.NoError(t, runRewrite(cmd, nil))

	// THEN: the call-site names the canonical table and verification passes
	content, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(content), ".from('master_users')")
	assert.Contains(t, out.String(), "verification passed")
	_, err = os.Stat(cfg.Verify.Report)
	assert.NoError(t, err)

	// WHEN: the file is restored
	require.NoError(t, runRestore(cmd, []string{page}))

	// THEN: the pristine content is back
	content, err = os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestRewrite_DryRunLeavesFiles(t *testing.T) {
	cmd, out, _ := setupCLI(t)
	original := "supabase.from('kiosk_users').select('*');\n"
	page := filepath.Join(cfg.Tree.Root, "app.js")
	writeFile(t, page, original)
	dryRun = true

	require.NoError(t, runRewrite(cmd, nil))

	content, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
	assert.Contains(t, out.String(), "kiosk_users/call x1")
}

func TestVerify_FailsOnResidue(t *testing.T) {
	cmd, out, _ := setupCLI(t)
	writeFile(t, filepath.Join(cfg.Tree.Root, "app.js"), "supabase.from('kiosk_users').select('*');\n")

	err := runVerify(cmd, nil)

	assert.ErrorIs(t, err, generic.ErrVerification)
	assert.Contains(t, out.String(), "kiosk_users")
}

func TestRestore_UnknownFile(t *testing.T) {
	cmd, _, dir := setupCLI(t)

	err := runRestore(cmd, []string{filepath.Join(dir, "src", "never.js")})

	assert.ErrorIs(t, err, errStageFailed)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// LEAVE MIGRATION HALF
// =============================================================================

func TestMigration_ResolveNormalizeImport(t *testing.T) {
	cmd, _, _ := setupCLI(t)
	writeFile(t, cfg.Migration.Input, holidayExport)
	seedAccounts(t, generic.Row{"auth_user_id": "acc-amy", "full_name": "Amy Lee"})

	// WHEN: names are resolved
	require.NoError(t, runResolve(cmd, nil))
	mapping, err := os.ReadFile(cfg.Identity.MappingFile)
	require.NoError(t, err)
	assert.Contains(t, string(mapping), "acc-amy")

	// WHEN: the spreadsheet is normalized
	require.NoError(t, runNormalize(cmd, nil))
	script, err := os.ReadFile(cfg.Migration.Script)
	require.NoError(t, err)
	assert.Contains(t, string(script), "holiday_requests")
	_, err = os.Stat(cfg.Migration.Statements)
	require.NoError(t, err)

	// WHEN: statements are imported
	require.NoError(t, runImport(cmd, nil))

	// THEN: one request header with one day line was written
	assert.Equal(t, 1, countRows(t, "holiday_requests"))
	assert.Equal(t, 1, countRows(t, "holiday_request_days"))

	// WHEN: the import runs again
	require.NoError(t, runImport(cmd, nil))

	// THEN: upserts keep it idempotent
	assert.Equal(t, 1, countRows(t, "holiday_requests"))
	assert.Equal(t, 1, countRows(t, "holiday_request_days"))
}

func TestNormalize_RequiresMapping(t *testing.T) {
	cmd, _, _ := setupCLI(t)
	writeFile(t, cfg.Migration.Input, holidayExport)

	err := runNormalize(cmd, nil)

	assert.ErrorIs(t, err, generic.ErrFileIO)
}

func TestOpenStore_UnknownKind(t *testing.T) {
	setupCLI(t)
	cfg.Store.Kind = "oracle"

	_, closeStore, err := openStore(cfg)
	defer closeStore()

	assert.ErrorIs(t, err, generic.ErrConfig)
}

func TestOpenStore_RESTNeedsKey(t *testing.T) {
	setupCLI(t)
	cfg.Store.Kind = config.StoreREST
	cfg.Store.URL = "https://example.supabase.co"
	cfg.Store.APIKeyEnv = "CONSOLIDATE_TEST_KEY"
	t.Setenv("CONSOLIDATE_TEST_KEY", "")

	_, _, err := openStore(cfg)

	assert.ErrorIs(t, err, generic.ErrConfig)
}
