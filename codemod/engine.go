package codemod

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// ENGINE - Applies a rule set to files on disk
// =============================================================================

// Engine rewrites files in place. Each file is processed independently: a
// failure on one file is recorded and the batch continues.
type Engine struct {
	fs      afs.Service
	backups BackupStore
	ledger  Ledger
	logger  *zap.Logger
	runID   string
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for backup and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// NewEngine creates an engine. A nil ledger disables ledger short-circuits;
// idempotence then rests on the rules alone.
func NewEngine(fs afs.Service, backups BackupStore, ledger Ledger, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{fs: fs, backups: backups, ledger: ledger, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = NewRunID(e.now())
	}
	return e
}

// NewRunID returns a sortable run id: timestamp followed by a short random suffix.
func NewRunID(at time.Time) string {
	return at.UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// RunID returns the id under which this engine writes backups.
func (e *Engine) RunID() string { return e.runID }

// Result summarizes one Apply.
type Result struct {
	RunID           string                  `json:"run_id"`
	RuleSetVersion  string                  `json:"rule_set_version"`
	Updated         []string                `json:"updated_files"`
	Changes         map[string]int          `json:"changes"`
	PerRule         map[string]int          `json:"per_rule"`
	PerFile         map[string][]RuleChange `json:"per_file"`
	BackupsCreated  int                     `json:"backups_created"`
	OrderingWarning []string                `json:"ordering_warnings,omitempty"`
	Tally           generic.Tally           `json:"tally"`

	// Err aggregates per-file failures.
	Err error `json:"-"`
}

// TotalChanges sums every substitution made.
func (r *Result) TotalChanges() int {
	total := 0
	for _, n := range r.Changes {
		total += n
	}
	return total
}

// Apply runs rs over each file. Files are read, rewritten in memory and,
// when anything changed, backed up before being written back.
func (e *Engine) Apply(ctx context.Context, files []string, rs *RuleSet) *Result {
	result := &Result{
		RunID:          e.runID,
		RuleSetVersion: rs.Version(),
		Changes:        make(map[string]int),
		PerRule:        make(map[string]int),
		PerFile:        make(map[string][]RuleChange),
	}
	for _, problem := range rs.OrderingProblems() {
		e.logger.Warn("rewrite: rule ordering may cause missed matches", zap.String("problem", problem))
		result.OrderingWarning = append(result.OrderingWarning, problem)
	}

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, path := range sorted {
		changes, err := e.applyFile(ctx, path, rs, result)
		if err != nil {
			e.logger.Warn("rewrite: file failed", zap.String("file", path), zap.Error(err))
			result.Err = multierr.Append(result.Err, err)
			result.Tally.Fail()
			continue
		}
		if changes == nil {
			result.Tally.Skip()
			continue
		}
		result.Tally.Succeed()
	}
	e.logger.Info("rewrite: done",
		zap.String("run_id", e.runID),
		zap.Int("files_updated", len(result.Updated)),
		zap.Int("changes", result.TotalChanges()),
		zap.Stringer("tally", result.Tally))
	return result
}

// applyFile returns nil changes when the file was left untouched.
func (e *Engine) applyFile(ctx context.Context, path string, rs *RuleSet, result *Result) ([]RuleChange, error) {
	content, err := e.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, &generic.FileIOError{Path: path, Op: "read", Err: err}
	}
	hash := ContentHash(content)
	version := rs.Version()

	if e.ledger != nil {
		entry, ok, err := e.ledger.Get(ctx, path)
		if err != nil {
			e.logger.Warn("rewrite: ledger unavailable", zap.String("file", path), zap.Error(err))
		} else if ok && entry.RuleSetVersion == version && entry.ContentHash == hash {
			e.logger.Debug("rewrite: already migrated", zap.String("file", path))
			return nil, nil
		}
	}

	rewritten, changes := ApplyContent(string(content), rs)
	if len(changes) == 0 {
		e.record(ctx, path, version, hash, 0)
		return nil, nil
	}

	if e.backups != nil {
		created, err := e.backups.Save(ctx, BackupRecord{
			Path:      path,
			RunID:     e.runID,
			Content:   content,
			CreatedAt: e.now(),
		})
		if err != nil {
			return nil, &generic.FileIOError{Path: path, Op: "backup", Err: err}
		}
		if created {
			result.BackupsCreated++
		}
	}

	out := []byte(rewritten)
	if err := e.fs.Upload(ctx, path, file.DefaultFileOsMode, bytes.NewReader(out)); err != nil {
		return nil, &generic.FileIOError{Path: path, Op: "write", Err: err}
	}

	total := TotalChanges(changes)
	result.Updated = append(result.Updated, path)
	result.Changes[path] = total
	result.PerFile[path] = changes
	for _, c := range changes {
		result.PerRule[c.Rule] += c.Count
	}
	e.record(ctx, path, version, ContentHash(out), total)
	e.logger.Info("rewrite: file updated", zap.String("file", path), zap.Int("changes", total))
	return changes, nil
}

func (e *Engine) record(ctx context.Context, path, version string, hash uint64, changes int) {
	if e.ledger == nil {
		return
	}
	err := e.ledger.Put(ctx, LedgerEntry{
		Path:           path,
		RuleSetVersion: version,
		ContentHash:    hash,
		Changes:        changes,
		AppliedAt:      e.now(),
	})
	if err != nil {
		e.logger.Warn("rewrite: cannot record ledger entry", zap.String("file", path), zap.Error(err))
	}
}

// Restore writes the most recent backup of path back over the file.
func (e *Engine) Restore(ctx context.Context, path string) (*BackupRecord, error) {
	if e.backups == nil {
		return nil, generic.ErrNotFound
	}
	record, err := e.backups.Latest(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := e.fs.Upload(ctx, path, file.DefaultFileOsMode, bytes.NewReader(record.Content)); err != nil {
		return nil, &generic.FileIOError{Path: path, Op: "restore", Err: err}
	}
	e.logger.Info("rewrite: file restored", zap.String("file", path), zap.String("run_id", record.RunID))
	return record, nil
}
