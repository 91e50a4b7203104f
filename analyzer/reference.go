/*
Package analyzer inventories table references in a source tree.

PURPOSE:
  Before rewriting call-sites, we need to know every place a tracked table
  name is used. After rewriting, the same scan run against the deprecated
  names is the terminal correctness gate (see verify.go).

ACCESS KINDS:
  call        .from('profiles')                      hard reference
  query       SELECT * FROM public.profiles          hard reference
  descriptive // load rows from the profiles table   soft reference

  Descriptive references are tracked separately so reports can exclude
  them from hard counts.

OVERLAP:
  A span of a line is attributed to at most one reference. Candidates are
  accepted in priority order call > query > descriptive; a candidate that
  overlaps an accepted span is dropped.

SEE ALSO:
  - scan.go: File walking and per-line matching
  - verify.go: Post-migration verification
  - codemod/rules.go: The rewrite rules mirror the call/query patterns
*/
package analyzer

import (
	"regexp"
	"strings"
)

// AccessKind classifies how a table name is referenced.
type AccessKind string

const (
	KindCall        AccessKind = "call"
	KindQuery       AccessKind = "query"
	KindDescriptive AccessKind = "descriptive"
)

// TableReference is one occurrence of a tracked name. Immutable once emitted.
type TableReference struct {
	File   string     `json:"file"`
	Line   int        `json:"line"`   // 1-based
	Column int        `json:"column"` // 1-based byte column within the line
	Offset int        `json:"offset"` // byte offset within the file
	Name   string     `json:"name"`
	Kind   AccessKind `json:"kind"`
	Text   string     `json:"text"` // the matched text
}

// Hard reports whether the reference is a real data access rather than prose.
func (r TableReference) Hard() bool { return r.Kind != KindDescriptive }

// =============================================================================
// PATTERNS
// =============================================================================

// queryKeywords introduce a table name in inline SQL. Kept in step with the
// query rewrite rules so that a full rewrite leaves no hard residue.
const queryKeywords = `FROM|JOIN|INTO|UPDATE`

var (
	commentMarker = regexp.MustCompile(`//|/\*|<!--|^\s*\*|^\s*#|--\s`)
	logCall       = regexp.MustCompile(`\b(console\.(log|warn|error|info|debug)|print|alert|logger\.\w+|log\.\w+)\s*\(`)
)

type namePatterns struct {
	name        string
	call        *regexp.Regexp
	query       *regexp.Regexp
	descriptive *regexp.Regexp
	tableWord   *regexp.Regexp
}

func compileName(name string) namePatterns {
	q := regexp.QuoteMeta(name)
	return namePatterns{
		name:        name,
		call:        regexp.MustCompile(`\.from\(\s*['"` + "`" + `]` + q + `['"` + "`" + `]\s*\)`),
		query:       regexp.MustCompile(`\b(?i:` + queryKeywords + `)\s+(?:public\.)?` + q + `\b`),
		descriptive: regexp.MustCompile(`\b` + q + `\b`),
		tableWord:   regexp.MustCompile(`^` + q + `\s+table\b`),
	}
}

// CallPattern returns the regular expression used for data-access calls of name.
func CallPattern(name string) string { return compileName(name).call.String() }

// QueryPattern returns the regular expression used for inline SQL naming name.
func QueryPattern(name string) string { return compileName(name).query.String() }

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// matchLine returns the references on one line, non-overlapping.
func matchLine(line string, patterns []namePatterns) []TableReference {
	var (
		accepted []span
		refs     []TableReference
	)
	accept := func(p namePatterns, kind AccessKind, s span) {
		for _, a := range accepted {
			if a.overlaps(s) {
				return
			}
		}
		accepted = append(accepted, s)
		refs = append(refs, TableReference{
			Column: s.start + 1,
			Name:   p.name,
			Kind:   kind,
			Text:   line[s.start:s.end],
		})
	}

	for _, p := range patterns {
		for _, loc := range p.call.FindAllStringIndex(line, -1) {
			accept(p, KindCall, span{loc[0], loc[1]})
		}
	}
	for _, p := range patterns {
		for _, loc := range p.query.FindAllStringIndex(line, -1) {
			accept(p, KindQuery, span{loc[0], loc[1]})
		}
	}
	for _, p := range patterns {
		for _, loc := range p.descriptive.FindAllStringIndex(line, -1) {
			if descriptiveContext(line, loc[0], p) {
				accept(p, KindDescriptive, span{loc[0], loc[1]})
			}
		}
	}
	return refs
}

// descriptiveContext reports whether a bare name at pos sits in prose:
// after a comment marker, inside a log call, or followed by the word "table".
func descriptiveContext(line string, pos int, p namePatterns) bool {
	if loc := commentMarker.FindStringIndex(line); loc != nil && loc[0] < pos {
		return true
	}
	if loc := logCall.FindStringIndex(line); loc != nil && loc[0] < pos {
		return true
	}
	return p.tableWord.MatchString(strings.TrimRight(line[pos:], "\r"))
}
