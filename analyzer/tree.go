package analyzer

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
)

// BackupMarker is embedded in the name of every file backup written by the
// codemod engine. Such files are never scanned or rewritten.
const BackupMarker = ".backup_"

// Tree selects the files of a source tree that take part in a migration.
type Tree struct {
	Root    string   `yaml:"root" json:"root"`
	Include []string `yaml:"include" json:"include"` // base-name globs, e.g. "*.html"
	Exclude []string `yaml:"exclude" json:"exclude"` // directory names or base-name globs
}

// Matches reports whether a file (by base name) is part of the tree.
func (t Tree) Matches(name string) bool {
	if strings.Contains(name, BackupMarker) {
		return false
	}
	for _, pattern := range t.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return false
		}
	}
	if len(t.Include) == 0 {
		return true
	}
	for _, pattern := range t.Include {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (t Tree) skipDir(name string) bool {
	for _, pattern := range t.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Files walks the tree and returns the local paths of every matching file, sorted.
func (t Tree) Files(ctx context.Context, fs afs.Service) ([]string, error) {
	root, err := filepath.Abs(t.Root)
	if err != nil {
		return nil, err
	}
	var files []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return !t.skipDir(info.Name()), nil
		}
		if !t.Matches(info.Name()) {
			return true, nil
		}
		location := baseURL
		if parent != "" {
			location = url.Join(location, parent)
		}
		files = append(files, url.Path(url.Join(location, info.Name())))
		return true, nil
	}
	if err := fs.Walk(ctx, root, visitor); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
