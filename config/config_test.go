package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/MagicManBen/CheckLoops/config"
	"github.com/MagicManBen/CheckLoops/generic"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Tables.Deprecated, 13)
	assert.Equal(t, "master_users", cfg.Tables.Canonical)
	assert.Equal(t, "SUPABASE_SERVICE_ROLE_KEY", cfg.Store.APIKeyEnv)
	assert.Equal(t, "auth_user_id", cfg.Identity.Accounts.IDColumn)
}

func TestLoad_OverlaysOnDefaults(t *testing.T) {
	// GIVEN: A file that only switches the store and the tree root
	// WHEN: Loading it
	// THEN: Everything else keeps its default value

	path := filepath.Join(t.TempDir(), "consolidate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  kind: rest
  url: https://example.supabase.co
tree:
  root: ./site
migration:
  year: 2024
  targets:
    site_id: 7
`), 0o644))

	cfg, err := config.Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, config.StoreREST, cfg.Store.Kind)
	assert.Equal(t, "SUPABASE_SERVICE_ROLE_KEY", cfg.Store.APIKeyEnv)
	assert.Equal(t, "./site", cfg.Tree.Root)
	assert.Contains(t, cfg.Tree.Exclude, "node_modules")
	assert.Equal(t, 2024, cfg.Migration.Year)
	assert.Equal(t, 7, cfg.Migration.Targets.SiteID)
	assert.Equal(t, "holiday_requests", cfg.Migration.Targets.Requests)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, generic.ErrConfig))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Kind = config.StoreREST
	cfg.Tables.Deprecated = append(cfg.Tables.Deprecated, "master_users", "bad name")
	cfg.Migration.Year = 0

	err := cfg.Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrConfig))
	assert.Len(t, multierr.Errors(err), 4)
}

func TestSnapshotTables_CanonicalFirstWithoutDuplicates(t *testing.T) {
	cfg := config.Default()
	cfg.Tables.Snapshot = []string{"holiday_requests", "profiles"}

	tables := cfg.SnapshotTables()

	assert.Equal(t, "master_users", tables[0])
	assert.Equal(t, "profiles", tables[1])
	assert.Len(t, tables, 15)
}

func TestAPIKey_ReadsEnvironment(t *testing.T) {
	cfg := config.Default()
	cfg.Store.APIKeyEnv = "CHECKLOOPS_TEST_KEY"

	t.Setenv("CHECKLOOPS_TEST_KEY", "")
	_, err := cfg.APIKey()
	assert.True(t, errors.Is(err, generic.ErrConfig))

	t.Setenv("CHECKLOOPS_TEST_KEY", "k")
	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "k", key)
}
