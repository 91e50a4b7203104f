package codemod

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// BACKUPS - Pristine copy of a file taken before its first mutation
// =============================================================================

// BackupRecord is the pristine content of a file before a run rewrote it.
type BackupRecord struct {
	Path      string    `json:"path"`
	RunID     string    `json:"run_id"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupStore keeps backup records.
type BackupStore interface {
	// Save stores the record unless one already exists for (RunID, Path).
	// created is false when an earlier record was kept.
	Save(ctx context.Context, record BackupRecord) (created bool, err error)

	// Latest returns the most recent record for path.
	Latest(ctx context.Context, path string) (*BackupRecord, error)
}

// FileBackups writes each backup next to its file as <name>.backup_<run id>,
// the layout operators already know from earlier manual migrations.
type FileBackups struct {
	fs afs.Service
}

func NewFileBackups(fs afs.Service) *FileBackups {
	return &FileBackups{fs: fs}
}

func backupPath(path, runID string) string {
	return path + analyzer.BackupMarker + runID
}

func (b *FileBackups) Save(ctx context.Context, record BackupRecord) (bool, error) {
	target := backupPath(record.Path, record.RunID)
	exists, err := b.fs.Exists(ctx, target)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := b.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(record.Content)); err != nil {
		return false, err
	}
	return true, nil
}

func (b *FileBackups) Latest(ctx context.Context, path string) (*BackupRecord, error) {
	objects, err := b.fs.List(ctx, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(path) + analyzer.BackupMarker
	var candidates []string
	modified := map[string]time.Time{}
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasPrefix(obj.Name(), prefix) {
			continue
		}
		location := url.Path(obj.URL())
		candidates = append(candidates, location)
		modified[location] = obj.ModTime()
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no backup for %s", generic.ErrNotFound, path)
	}
	// Run ids start with a sortable timestamp.
	sort.Strings(candidates)
	latest := candidates[len(candidates)-1]
	content, err := b.fs.DownloadWithURL(ctx, latest)
	if err != nil {
		return nil, err
	}
	return &BackupRecord{
		Path:      path,
		RunID:     strings.TrimPrefix(filepath.Base(latest), prefix),
		Content:   content,
		CreatedAt: modified[latest],
	}, nil
}
