package analyzer

import (
	"bytes"
	"context"
	"sort"

	"github.com/viant/afs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
)

// Analyzer scans a tree for references to tracked table names.
type Analyzer struct {
	fs     afs.Service
	logger *zap.Logger
}

func New(fs afs.Service, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{fs: fs, logger: logger}
}

// Scan reads every file of the tree, one at a time, and returns the references
// to names. A file that cannot be read is recorded in the report and skipped.
func (a *Analyzer) Scan(ctx context.Context, tree Tree, names []string) (*Report, error) {
	files, err := tree.Files(ctx, a.fs)
	if err != nil {
		return nil, &generic.FileIOError{Path: tree.Root, Op: "walk", Err: err}
	}
	return a.ScanFiles(ctx, files, names), nil
}

// ScanFiles is Scan over an explicit file list.
func (a *Analyzer) ScanFiles(ctx context.Context, files []string, names []string) *Report {
	report := &Report{Names: append([]string(nil), names...)}
	patterns := compileNames(names)

	for _, file := range files {
		content, err := a.fs.DownloadWithURL(ctx, file)
		if err != nil {
			ioErr := &generic.FileIOError{Path: file, Op: "read", Err: err}
			a.logger.Warn("scan: cannot read file", zap.String("file", file), zap.Error(err))
			report.Err = multierr.Append(report.Err, ioErr)
			report.Tally.Fail()
			continue
		}
		refs := scanContent(file, content, patterns)
		report.References = append(report.References, refs...)
		report.FilesScanned++
		report.Tally.Succeed()
		if len(refs) > 0 {
			a.logger.Debug("scan: references found", zap.String("file", file), zap.Int("count", len(refs)))
		}
	}
	return report
}

// ScanContent returns the references to names in content. It does no I/O.
func ScanContent(file string, content []byte, names []string) []TableReference {
	return scanContent(file, content, compileNames(names))
}

func compileNames(names []string) []namePatterns {
	// Longer names first so that a name containing another is tried first.
	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	patterns := make([]namePatterns, 0, len(sorted))
	for _, n := range sorted {
		if n == "" {
			continue
		}
		patterns = append(patterns, compileName(n))
	}
	return patterns
}

func scanContent(file string, content []byte, patterns []namePatterns) []TableReference {
	var refs []TableReference
	offset, lineNo := 0, 1
	for offset <= len(content) {
		end := bytes.IndexByte(content[offset:], '\n')
		if end < 0 {
			end = len(content) - offset
		}
		line := string(content[offset : offset+end])
		for _, ref := range matchLine(line, patterns) {
			ref.File = file
			ref.Line = lineNo
			ref.Offset = offset + ref.Column - 1
			refs = append(refs, ref)
		}
		offset += end + 1
		lineNo++
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}
