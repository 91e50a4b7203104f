package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/config"
	"github.com/MagicManBen/CheckLoops/generic"
	memstore "github.com/MagicManBen/CheckLoops/generic/store"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/sheet"
	"github.com/MagicManBen/CheckLoops/store/postgres"
	"github.com/MagicManBen/CheckLoops/store/rest"
	"github.com/MagicManBen/CheckLoops/store/sqlite"
)

// now is the clock stamped into generated artifacts.
var now = time.Now

// =============================================================================
// RECORD STORE
// =============================================================================

// openStore builds the record store named by c.Store.Kind. The returned
// closer is always safe to call.
func openStore(c *config.Config) (generic.RecordStore, func(), error) {
	noop := func() {}
	switch c.Store.Kind {
	case config.StoreREST:
		key, err := c.APIKey()
		if err != nil {
			return nil, noop, err
		}
		client := rest.New(c.Store.URL, key,
			rest.WithPageSize(c.Store.PageSize),
			rest.WithOrder(c.Store.OrderBy),
			rest.WithLogger(logger))
		return client, noop, nil
	case config.StorePostgres:
		dsn, err := c.DSN()
		if err != nil {
			return nil, noop, err
		}
		db, err := postgres.New(dsn)
		if err != nil {
			return nil, noop, err
		}
		return db, func() { _ = db.Close() }, nil
	case config.StoreSQLite:
		db, err := openSQLite(c.Store.Path)
		if err != nil {
			return nil, noop, err
		}
		return db, func() { _ = db.Close() }, nil
	case config.StoreMemory:
		return memstore.NewTxMemory(), noop, nil
	}
	return nil, noop, fmt.Errorf("%w: unknown store.kind %q", generic.ErrConfig, c.Store.Kind)
}

func openSQLite(path string) (*sqlite.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &generic.FileIOError{Path: path, Op: "mkdir", Err: err}
		}
	}
	return sqlite.New(path)
}

// openBookkeeping returns the backup store and ledger for the rewrite stage.
// Without a state database, backups sit next to each file and the ledger is off.
func openBookkeeping(fs afs.Service) (codemod.BackupStore, codemod.Ledger, func(), error) {
	if cfg.Codemod.StateDB == "" {
		return codemod.NewFileBackups(fs), nil, func() {}, nil
	}
	db, err := openSQLite(cfg.Codemod.StateDB)
	if err != nil {
		return nil, nil, func() {}, err
	}
	return db.Backups(), db.Ledger(), func() { _ = db.Close() }, nil
}

// =============================================================================
// ARTIFACTS
// =============================================================================

// localPath makes relative file paths absolute; URLs pass through.
func localPath(location string) string {
	if location == "" || strings.Contains(location, "://") {
		return location
	}
	if abs, err := filepath.Abs(location); err == nil {
		return abs
	}
	return location
}

func upload(ctx context.Context, location string, data []byte) error {
	target := localPath(location)
	if err := afs.New().Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return &generic.FileIOError{Path: target, Op: "write", Err: err}
	}
	return nil
}

func download(ctx context.Context, location string) ([]byte, error) {
	source := localPath(location)
	data, err := afs.New().DownloadWithURL(ctx, source)
	if err != nil {
		return nil, &generic.FileIOError{Path: source, Op: "read", Err: err}
	}
	return data, nil
}

func readWorkbook(ctx context.Context) (*sheet.Workbook, error) {
	data, err := download(ctx, cfg.Migration.Input)
	if err != nil {
		return nil, err
	}
	return sheet.NewReader(cfg.Migration.Roles).Read(bytes.NewReader(data))
}

func readMapping(ctx context.Context) (*identity.Mapping, error) {
	data, err := download(ctx, cfg.Identity.MappingFile)
	if err != nil {
		return nil, err
	}
	return identity.ReadCSV(bytes.NewReader(data))
}

func saveMapping(ctx context.Context, m *identity.Mapping) error {
	var buf bytes.Buffer
	if err := m.WriteCSV(&buf); err != nil {
		return err
	}
	return upload(ctx, cfg.Identity.MappingFile, buf.Bytes())
}

func decimalOf(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
