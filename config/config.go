/*
Package config holds every fixed input of the consolidation stages.

PURPOSE:
  One explicit struct replaces the constants that used to be scattered
  across one-off scripts: table lists, tree layout, output directories,
  identity source, import targets. It is loaded once by the command
  surface and passed to constructors; no package reads it globally.

LOADING:
  Default() returns a complete configuration for the practice's project.
  Load() reads a YAML document and overlays it on the defaults, so a file
  only needs the keys it changes.

SECRETS:
  Credentials never appear in the file. The file names environment
  variables (store.api_key_env, store.dsn_env) and the values are read
  at the moment a client is built.

EXAMPLE:
  store:
    kind: rest
    url: https://example.supabase.co
  tree:
    root: ./site
  migration:
    input: ./input/holidays.csv
    year: 2025

SEE ALSO:
  - cmd/consolidate/main.go: Builds components from a Config
*/
package config

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/viant/afs"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/migration"
	"github.com/MagicManBen/CheckLoops/sheet"
)

// Store kinds.
const (
	StoreREST     = "rest"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// DeprecatedTables are the per-user tables folded into the canonical table.
var DeprecatedTables = []string{
	"profiles",
	"kiosk_users",
	"staff_app_welcome",
	"1_staff_holiday_profiles",
	"staff_holiday_profiles",
	"3_staff_working_patterns",
	"staff_working_patterns",
	"working_patterns",
	"user_profiles_complete",
	"onboarding",
	"holiday_entitlements",
	"user_permissions",
	"user_roles",
}

// Config is the full set of stage inputs.
type Config struct {
	Store     Store         `yaml:"store"`
	Tables    Tables        `yaml:"tables"`
	Snapshot  Snapshot      `yaml:"snapshot"`
	Tree      analyzer.Tree `yaml:"tree"`
	Codemod   Codemod       `yaml:"codemod"`
	Verify    Verify        `yaml:"verify"`
	Identity  Identity      `yaml:"identity"`
	Migration Migration     `yaml:"migration"`
	Server    Server        `yaml:"server"`
}

// Store selects the record store. OrderBy names the paging key of each
// table read through the rest store ("id" when absent).
type Store struct {
	Kind      string            `yaml:"kind"`
	URL       string            `yaml:"url"`
	APIKeyEnv string            `yaml:"api_key_env"`
	DSNEnv    string            `yaml:"dsn_env"`
	Path      string            `yaml:"path"`
	PageSize  int               `yaml:"page_size"`
	OrderBy   map[string]string `yaml:"order_by"`
}

// Tables names the canonical table, the tables folded into it, and extra
// tables backed up alongside both.
type Tables struct {
	Canonical  string   `yaml:"canonical"`
	Deprecated []string `yaml:"deprecated"`
	Snapshot   []string `yaml:"snapshot"`
}

type Snapshot struct {
	Dir string `yaml:"dir"`
}

// Codemod configures the rewrite stage. StateDB is the SQLite file holding
// the ledger and backups; empty keeps backups next to each file and no ledger.
type Codemod struct {
	Version   string `yaml:"version"`
	RulesFile string `yaml:"rules_file"`
	StateDB   string `yaml:"state_db"`
	Report    string `yaml:"report"`
}

type Verify struct {
	Strict bool   `yaml:"strict"`
	Report string `yaml:"report"`
}

type Identity struct {
	Accounts    identity.AccountSource `yaml:"accounts"`
	EmailDomain string                 `yaml:"email_domain"`
	MappingFile string                 `yaml:"mapping_file"`
}

type Migration struct {
	Input           string            `yaml:"input"`
	Year            int               `yaml:"year"`
	Roles           []string          `yaml:"roles"`
	ClinicalRoles   []string          `yaml:"clinical_roles"`
	DefaultHours    int               `yaml:"default_hours"`
	DefaultMinutes  int               `yaml:"default_minutes"`
	DefaultSessions int64             `yaml:"default_sessions"`
	Targets         migration.Targets `yaml:"targets"`
	Script          string            `yaml:"script"`
	Statements      string            `yaml:"statements"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: Store{
			Kind:      StoreSQLite,
			APIKeyEnv: "SUPABASE_SERVICE_ROLE_KEY",
			DSNEnv:    "DATABASE_URL",
			Path:      "./data/rehearsal.db",
			PageSize:  1000,
			OrderBy:   map[string]string{"master_users": "auth_user_id"},
		},
		Tables: Tables{
			Canonical:  "master_users",
			Deprecated: append([]string(nil), DeprecatedTables...),
			Snapshot:   []string{"holiday_requests", "holiday_request_days"},
		},
		Snapshot: Snapshot{Dir: "./backups"},
		Tree: analyzer.Tree{
			Root:    ".",
			Include: []string{"*.html", "*.js", "*.mjs", "*.cjs", "*.ts", "*.py"},
			Exclude: []string{"node_modules", ".git", "backups", "*.min.js"},
		},
		Codemod: Codemod{
			Version: "v1",
			StateDB: "./data/codemod.db",
			Report:  "./reports/rewrite.json",
		},
		Verify: Verify{Report: "./reports/verification.json"},
		Identity: Identity{
			Accounts: identity.AccountSource{
				Table:      "master_users",
				IDColumn:   "auth_user_id",
				NameColumn: "full_name",
			},
			EmailDomain: "stoke.nhs.uk",
			MappingFile: "./artifacts/user_mapping.csv",
		},
		Migration: Migration{
			Input:           "./input/holidays.csv",
			Year:            2025,
			Roles:           append([]string(nil), sheet.DefaultRoles...),
			ClinicalRoles:   append([]string(nil), migration.DefaultClinicalRoles...),
			DefaultHours:    8,
			DefaultSessions: 1,
			Targets:         migration.DefaultTargets(),
			Script:          "./artifacts/holiday_import.sql",
			Statements:      "./artifacts/statements.json",
		},
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Load reads the YAML document at location and overlays it on Default().
func Load(ctx context.Context, location string) (*Config, error) {
	cfg := Default()
	if location == "" {
		return cfg, cfg.Validate()
	}
	data, err := afs.New().DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", generic.ErrConfig, location, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", generic.ErrConfig, location, err)
	}
	return cfg, cfg.Validate()
}

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs error
	problem := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s", generic.ErrConfig, fmt.Sprintf(format, args...)))
	}

	switch c.Store.Kind {
	case StoreREST:
		if c.Store.URL == "" {
			problem("store.url is required for the rest store")
		}
		if c.Store.APIKeyEnv == "" {
			problem("store.api_key_env is required for the rest store")
		}
	case StorePostgres:
		if c.Store.DSNEnv == "" {
			problem("store.dsn_env is required for the postgres store")
		}
	case StoreSQLite:
		if c.Store.Path == "" {
			problem("store.path is required for the sqlite store")
		}
	case StoreMemory:
	default:
		problem("unknown store.kind %q", c.Store.Kind)
	}

	if !tableName.MatchString(c.Tables.Canonical) {
		problem("invalid canonical table %q", c.Tables.Canonical)
	}
	if len(c.Tables.Deprecated) == 0 {
		problem("tables.deprecated is empty")
	}
	for _, name := range c.Tables.Deprecated {
		if !tableName.MatchString(name) {
			problem("invalid deprecated table %q", name)
		}
		if name == c.Tables.Canonical {
			problem("canonical table %q is also listed as deprecated", name)
		}
	}
	if c.Tree.Root == "" {
		problem("tree.root is required")
	}
	if c.Codemod.Version == "" {
		problem("codemod.version is required")
	}
	if c.Migration.Year < 1900 {
		problem("migration.year %d is out of range", c.Migration.Year)
	}
	if c.Migration.DefaultHours < 0 || c.Migration.DefaultMinutes < 0 || c.Migration.DefaultMinutes > 59 {
		problem("invalid default duration %d:%02d", c.Migration.DefaultHours, c.Migration.DefaultMinutes)
	}
	if c.Migration.DefaultSessions < 0 {
		problem("migration.default_sessions is negative")
	}
	return errs
}

// SnapshotTables is canonical, then deprecated, then extra tables, without duplicates.
func (c *Config) SnapshotTables() []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{{c.Tables.Canonical}, c.Tables.Deprecated, c.Tables.Snapshot} {
		for _, t := range group {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// APIKey reads the store key from the configured environment variable.
func (c *Config) APIKey() (string, error) {
	return fromEnv(c.Store.APIKeyEnv)
}

// DSN reads the Postgres connection string from the configured environment variable.
func (c *Config) DSN() (string, error) {
	return fromEnv(c.Store.DSNEnv)
}

func fromEnv(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no environment variable configured", generic.ErrConfig)
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", generic.ErrConfig, name)
	}
	return v, nil
}
