/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  A local stand-in for the hosted database: the canonical tables the leave
  migration writes to, plus the bookkeeping of the codemod engine (the
  migration ledger and file backups). Useful for rehearsing an import and
  for keeping rewrite state outside the source tree.

INTERFACES IMPLEMENTED:
  generic.RecordStore:   Filtered reads and natural-key upserts
  generic.TxRecordStore: Header + detail lines written atomically
  codemod.Ledger:        via Store.Ledger()
  codemod.BackupStore:   via Store.Backups()

KEY TABLES:
  master_users:          Canonical users (entitlement, weekly pattern)
  holiday_requests:      Leave request headers
  holiday_request_days:  One row per day of leave
  codemod_ledger:        file → last applied rule-set version
  codemod_backups:       Pristine file content per run

IDENTIFIERS:
  Table and column names arrive as data (rows are maps), so every
  identifier is checked against a strict pattern before it is spliced
  into SQL. Values are always bound.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/rehearsal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/rest/rest.go: Hosted store client
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Canonical users
	CREATE TABLE IF NOT EXISTS master_users (
		auth_user_id TEXT PRIMARY KEY,
		full_name TEXT,
		email TEXT,
		role TEXT,
		site_id INTEGER,
		holiday_year INTEGER,
		annual_hours TEXT,
		annual_sessions TEXT,
		monday_hours TEXT,
		monday_sessions TEXT,
		tuesday_hours TEXT,
		tuesday_sessions TEXT,
		wednesday_hours TEXT,
		wednesday_sessions TEXT,
		thursday_hours TEXT,
		thursday_sessions TEXT,
		friday_hours TEXT,
		friday_sessions TEXT
	);

	-- Leave request headers
	CREATE TABLE IF NOT EXISTS holiday_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		site_id INTEGER,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holiday_requests_user
		ON holiday_requests(user_id);

	-- One row per requested day
	CREATE TABLE IF NOT EXISTS holiday_request_days (
		id TEXT PRIMARY KEY,
		holiday_request_id TEXT NOT NULL REFERENCES holiday_requests(id),
		date TEXT NOT NULL,
		hours_requested TEXT,
		sessions_requested TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_holiday_request_days_request
		ON holiday_request_days(holiday_request_id, date);

	-- Codemod bookkeeping
	CREATE TABLE IF NOT EXISTS codemod_ledger (
		path TEXT PRIMARY KEY,
		rule_set_version TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		changes INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS codemod_backups (
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		content BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, path)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (generic.RecordStore interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}

// Select returns the rows of table matching filter.
func (s *Store) Select(ctx context.Context, table string, filter generic.Filter) ([]generic.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectRows(ctx, s.db, table, filter)
}

func (s *Store) selectRows(ctx context.Context, db execer, table string, filter generic.Filter) ([]generic.Row, error) {
	fail := func(err error) ([]generic.Row, error) {
		return nil, &generic.TransportError{Table: table, Op: "select", Err: err}
	}
	if err := checkIdentifiers(append([]string{table}, filter.Columns()...)...); err != nil {
		return fail(err)
	}
	where, args := whereClause(filter)
	query := "SELECT * FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY rowid"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fail(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fail(err)
	}
	var result []generic.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fail(err)
		}
		row := make(generic.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}
	return result, nil
}

// whereClause translates a filter. Values compare by their text form,
// matching the in-memory and REST stores.
func whereClause(f generic.Filter) (string, []any) {
	switch {
	case len(f.Or) > 0:
		return joinClauses(f.Or, " OR ")
	case len(f.And) > 0:
		return joinClauses(f.And, " AND ")
	case f.Column == "":
		return "", nil
	case f.Value == nil:
		return f.Column + " IS NULL", nil
	}
	return "CAST(" + f.Column + " AS TEXT) = ?", []any{fmt.Sprint(f.Value)}
}

func joinClauses(filters []generic.Filter, op string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, f := range filters {
		clause, a := whereClause(f)
		if clause == "" {
			clause = "1 = 1"
		}
		parts = append(parts, "("+clause+")")
		args = append(args, a...)
	}
	return strings.Join(parts, op), args
}

// Upsert inserts rows, updating the other columns of rows that collide on conflictKeys.
func (s *Store) Upsert(ctx context.Context, table string, rows []generic.Row, conflictKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &generic.TransportError{Table: table, Op: "upsert", Err: err}
	}
	defer sqlTx.Rollback()

	if err := s.upsertRows(ctx, sqlTx, table, rows, conflictKeys); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return &generic.TransportError{Table: table, Op: "upsert", Err: err}
	}
	return nil
}

func (s *Store) upsertRows(ctx context.Context, db execer, table string, rows []generic.Row, conflictKeys []string) error {
	fail := func(err error) error {
		return &generic.TransportError{Table: table, Op: "upsert", Err: err}
	}
	if err := checkIdentifiers(append([]string{table}, conflictKeys...)...); err != nil {
		return fail(err)
	}
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		if err := checkIdentifiers(cols...); err != nil {
			return fail(err)
		}

		isKey := map[string]bool{}
		for _, k := range conflictKeys {
			isKey[k] = true
		}
		placeholders := make([]string, len(cols))
		args := make([]any, len(cols))
		var updates []string
		for i, c := range cols {
			placeholders[i] = "?"
			args[i] = bindValue(row[c])
			if !isKey[c] {
				updates = append(updates, c+" = excluded."+c)
			}
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if len(conflictKeys) > 0 {
			query += " ON CONFLICT(" + strings.Join(conflictKeys, ", ") + ")"
			if len(updates) == 0 {
				query += " DO NOTHING"
			} else {
				query += " DO UPDATE SET " + strings.Join(updates, ", ")
			}
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fail(err)
		}
	}
	return nil
}

// bindValue converts values the driver does not bind natively.
func bindValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case generic.TimePoint:
		return x.String()
	case *generic.TimePoint:
		if x == nil {
			return nil
		}
		return x.String()
	}
	return v
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxRecordStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Select(ctx context.Context, table string, filter generic.Filter) ([]generic.Row, error) {
	return ts.parent.selectRows(ctx, ts.tx, table, filter)
}

func (ts *txStore) Upsert(ctx context.Context, table string, rows []generic.Row, conflictKeys []string) error {
	return ts.parent.upsertRows(ctx, ts.tx, table, rows, conflictKeys)
}

// =============================================================================
// MIGRATION LEDGER (codemod.Ledger interface)
// =============================================================================

// Ledger is the codemod ledger kept in this store.
type Ledger struct {
	s *Store
}

// Ledger returns the codemod ledger backed by this store.
func (s *Store) Ledger() *Ledger { return &Ledger{s: s} }

func (l *Ledger) Get(ctx context.Context, path string) (codemod.LedgerEntry, bool, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	var (
		entry     codemod.LedgerEntry
		hash      string
		appliedAt string
	)
	err := l.s.db.QueryRowContext(ctx,
		"SELECT path, rule_set_version, content_hash, changes, applied_at FROM codemod_ledger WHERE path = ?",
		path,
	).Scan(&entry.Path, &entry.RuleSetVersion, &hash, &entry.Changes, &appliedAt)
	if err == sql.ErrNoRows {
		return codemod.LedgerEntry{}, false, nil
	}
	if err != nil {
		return codemod.LedgerEntry{}, false, fmt.Errorf("failed to read ledger entry: %w", err)
	}
	if entry.ContentHash, err = strconv.ParseUint(hash, 16, 64); err != nil {
		return codemod.LedgerEntry{}, false, fmt.Errorf("corrupt ledger hash for %s: %w", path, err)
	}
	entry.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	return entry, true, nil
}

func (l *Ledger) Put(ctx context.Context, entry codemod.LedgerEntry) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	_, err := l.s.db.ExecContext(ctx, `
		INSERT INTO codemod_ledger (path, rule_set_version, content_hash, changes, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			rule_set_version = excluded.rule_set_version,
			content_hash = excluded.content_hash,
			changes = excluded.changes,
			applied_at = excluded.applied_at
	`,
		entry.Path,
		entry.RuleSetVersion,
		strconv.FormatUint(entry.ContentHash, 16),
		entry.Changes,
		entry.AppliedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

// =============================================================================
// BACKUPS (codemod.BackupStore interface)
// =============================================================================

// backupTimeLayout is fixed-width so that text order is time order.
const backupTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Backups is the codemod backup store kept in this store.
type Backups struct {
	s *Store
}

// Backups returns the codemod backup store backed by this store.
func (s *Store) Backups() *Backups { return &Backups{s: s} }

func (b *Backups) Save(ctx context.Context, record codemod.BackupRecord) (bool, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	res, err := b.s.db.ExecContext(ctx, `
		INSERT INTO codemod_backups (run_id, path, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO NOTHING
	`, record.RunID, record.Path, record.Content, record.CreatedAt.UTC().Format(backupTimeLayout))
	if err != nil {
		return false, fmt.Errorf("failed to save backup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backups) Latest(ctx context.Context, path string) (*codemod.BackupRecord, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	var (
		record    = codemod.BackupRecord{Path: path}
		createdAt string
	)
	err := b.s.db.QueryRowContext(ctx, `
		SELECT run_id, content, created_at FROM codemod_backups
		WHERE path = ?
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`, path).Scan(&record.RunID, &record.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no backup for %s", generic.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	record.CreatedAt, _ = time.Parse(backupTimeLayout, createdAt)
	return &record, nil
}

// Reset clears every table (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"holiday_request_days", "holiday_requests", "master_users", "codemod_ledger", "codemod_backups"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}
