/*
Package snapshot captures the tracked tables before anything is migrated.

PURPOSE:
  A snapshot is the rollback artifact of the consolidation: one JSON
  document holding every row of every tracked table at a point in time.
  Taking it only reads from the record store.

FAILURE ISOLATION:
  Each table is fetched with its own Select. A table that cannot be read
  is recorded as {"error": "..."} and the remaining tables are still
  captured. No retries.

ARTIFACT:
  snapshot_<YYYYMMDD_HHMMSS>.json

    {
      "timestamp": "2025-03-14T09:30:00Z",
      "tables": {
        "profiles":    [ {...}, {...} ],
        "kiosk_users": { "error": "select kiosk_users: ..." }
      }
    }

SEE ALSO:
  - generic/store.go: RecordStore
  - cmd/consolidate/stages.go: Command wiring
*/
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
)

// TableSnapshot is either the rows of a table or the error that prevented reading it.
type TableSnapshot struct {
	Rows  []generic.Row
	Error string
}

// MarshalJSON writes rows as an array and a failure as {"error": "..."}.
func (t TableSnapshot) MarshalJSON() ([]byte, error) {
	if t.Error != "" {
		return json.Marshal(map[string]string{"error": t.Error})
	}
	rows := t.Rows
	if rows == nil {
		rows = []generic.Row{}
	}
	return json.Marshal(rows)
}

func (t *TableSnapshot) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(b, &failure); err != nil {
			return err
		}
		t.Error = failure.Error
		return nil
	}
	return json.Unmarshal(b, &t.Rows)
}

// Failed reports whether the table could not be read.
func (t TableSnapshot) Failed() bool { return t.Error != "" }

// Snapshot is the captured state of every tracked table.
type Snapshot struct {
	Timestamp time.Time                `json:"timestamp"`
	Tables    map[string]TableSnapshot `json:"tables"`
	Tally     generic.Tally            `json:"-"`

	// Err aggregates the per-table transport errors.
	Err error `json:"-"`
}

// FileName returns the artifact name for the snapshot.
func (s *Snapshot) FileName() string {
	return "snapshot_" + s.Timestamp.UTC().Format("20060102_150405") + ".json"
}

// Manager reads tables through a record store and persists snapshots.
type Manager struct {
	store  generic.RecordStore
	fs     afs.Service
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a manager writing artifacts under dir.
func NewManager(store generic.RecordStore, fs afs.Service, dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, fs: fs, dir: dir, logger: logger, now: time.Now}
}

// WithClock overrides the snapshot timestamp source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Snapshot reads every table. It never returns an error for a single
// table; those are recorded in the result.
func (m *Manager) Snapshot(ctx context.Context, tables []string) *Snapshot {
	snap := &Snapshot{
		Timestamp: m.now().UTC(),
		Tables:    make(map[string]TableSnapshot, len(tables)),
	}
	for _, table := range tables {
		rows, err := m.store.Select(ctx, table, generic.Filter{})
		if err != nil {
			m.logger.Warn("snapshot: table failed", zap.String("table", table), zap.Error(err))
			snap.Tables[table] = TableSnapshot{Error: err.Error()}
			snap.Err = multierr.Append(snap.Err, err)
			snap.Tally.Fail()
			continue
		}
		if rows == nil {
			rows = []generic.Row{}
		}
		snap.Tables[table] = TableSnapshot{Rows: rows}
		snap.Tally.Succeed()
		m.logger.Info("snapshot: table captured", zap.String("table", table), zap.Int("rows", len(rows)))
	}
	return snap
}

// Save writes the snapshot artifact and returns its location.
func (m *Manager) Save(ctx context.Context, snap *Snapshot) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	location := url.Join(m.dir, snap.FileName())
	if err := m.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", &generic.FileIOError{Path: location, Op: "write", Err: err}
	}
	m.logger.Info("snapshot: saved", zap.String("location", location), zap.Stringer("tally", snap.Tally))
	return location, nil
}

// Load reads a snapshot artifact back.
func (m *Manager) Load(ctx context.Context, location string) (*Snapshot, error) {
	data, err := m.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, &generic.FileIOError{Path: location, Op: "read", Err: err}
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", location, err)
	}
	for _, t := range snap.Tables {
		if t.Failed() {
			snap.Tally.Fail()
		} else {
			snap.Tally.Succeed()
		}
	}
	return snap, nil
}
