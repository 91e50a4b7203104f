/*
Package codemod rewrites table and column references across a source tree.

PURPOSE:
  Applies an explicitly ordered table of declarative rewrite rules to every
  file of a tree. One generic routine interprets every rule, so each rule
  can be unit-tested on a string without touching the file system.

RULE ANATOMY:
  Match       Regular expression with capture groups
  Replace     Template, capture groups expanded with $1 / ${name}
  Scope       Applicability predicate: the enclosing access expression
              must match it (see ACCESS EXPRESSIONS)
  Unless      Idempotence marker: a match that also matches Unless is
              already in canonical form and is left alone
  Within      Region predicate: a match counts only when it lies inside
              a match of Within (capture group 1 when present)
  Except      Exclusion predicate: a match inside a match of Except,
              searched within each Within region, is left alone

  Within lets a rule rewrite every token of an argument list in one pass
  (".select('user_id, x, user_id')") with a match that consumes nothing
  but the token itself.

ACCESS EXPRESSIONS:
  The access expression of a match starts at the nearest preceding
  ".from(" call and runs to the end of the match. It is cut, and the
  scoped rule does not apply, when a ';' or a line that does not continue
  the call chain (next line not starting with '.') appears between the
  two outside brackets and string literals.

  A match whose expansion equals the matched text is never counted, so
  re-running a rule table over a migrated tree changes nothing.

ORDERING:
  Table rules run before column rules. Column rules are scoped to
  expressions that already name the canonical table; running them first
  misses matches (false negatives) but never corrupts content.

SEE ALSO:
  - apply.go: Pure content rewriting
  - engine.go: File I/O, backups and the migration ledger
*/
package codemod

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/minio/highwayhash"

	"github.com/MagicManBen/CheckLoops/generic"
)

// RuleKind orders rules: every table rule must come before any column rule.
type RuleKind string

const (
	KindTable  RuleKind = "table"
	KindColumn RuleKind = "column"
	KindText   RuleKind = "text"
)

// RuleSpec is the declarative, serializable form of a rewrite rule.
type RuleSpec struct {
	Name    string   `yaml:"name" json:"name"`
	Kind    RuleKind `yaml:"kind" json:"kind"`
	Match   string   `yaml:"match" json:"match"`
	Replace string   `yaml:"replace" json:"replace"`
	Scope   string   `yaml:"scope,omitempty" json:"scope,omitempty"`
	Unless  string   `yaml:"unless,omitempty" json:"unless,omitempty"`
	Within  string   `yaml:"within,omitempty" json:"within,omitempty"`
	Except  string   `yaml:"except,omitempty" json:"except,omitempty"`
}

// Rule is a compiled RuleSpec.
type Rule struct {
	Spec    RuleSpec
	pattern *regexp.Regexp
	scope   *regexp.Regexp
	unless  *regexp.Regexp
	within  *regexp.Regexp
	except  *regexp.Regexp
}

// Compile validates and compiles a rule.
func Compile(spec RuleSpec) (*Rule, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", generic.ErrInvalidRule, spec.Name, fmt.Sprintf(format, args...))
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: rule without name", generic.ErrInvalidRule)
	}
	switch spec.Kind {
	case KindTable, KindColumn, KindText:
	default:
		return nil, invalid("unknown kind %q", spec.Kind)
	}
	pattern, err := regexp.Compile(spec.Match)
	if err != nil {
		return nil, invalid("match: %v", err)
	}
	if pattern.MatchString("") {
		return nil, invalid("match accepts the empty string")
	}
	rule := &Rule{Spec: spec, pattern: pattern}
	if spec.Scope != "" {
		if rule.scope, err = regexp.Compile(spec.Scope); err != nil {
			return nil, invalid("scope: %v", err)
		}
	}
	if spec.Unless != "" {
		if rule.unless, err = regexp.Compile(spec.Unless); err != nil {
			return nil, invalid("unless: %v", err)
		}
	}
	if spec.Within != "" {
		if rule.within, err = regexp.Compile(spec.Within); err != nil {
			return nil, invalid("within: %v", err)
		}
	}
	if spec.Except != "" {
		if rule.except, err = regexp.Compile(spec.Except); err != nil {
			return nil, invalid("except: %v", err)
		}
	}
	return rule, nil
}

// MustCompile is Compile for rule tables known to be valid.
func MustCompile(spec RuleSpec) *Rule {
	r, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Apply rewrites every applicable, non-overlapping match in content and
// returns the new content with the number of substitutions made.
func (r *Rule) Apply(content string) (string, int) {
	matches := r.pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}
	within, except := r.regions(content)
	var (
		b     strings.Builder
		last  int
		count int
	)
	for _, m := range matches {
		start, end := m[0], m[1]
		matched := content[start:end]
		if r.unless != nil && r.unless.MatchString(matched) {
			continue
		}
		if r.within != nil && !anyContains(within, start, end) {
			continue
		}
		if anyContains(except, start, end) {
			continue
		}
		if r.scope != nil && !r.scope.MatchString(accessExpression(content, start, end)) {
			continue
		}
		replacement := string(r.pattern.ExpandString(nil, r.Spec.Replace, content, m))
		if replacement == matched {
			continue
		}
		b.WriteString(content[last:start])
		b.WriteString(replacement)
		last = end
		count++
	}
	if count == 0 {
		return content, 0
	}
	b.WriteString(content[last:])
	return b.String(), count
}

type region struct{ start, end int }

func (g region) contains(start, end int) bool { return g.start <= start && end <= g.end }

func anyContains(regions []region, start, end int) bool {
	for _, g := range regions {
		if g.contains(start, end) {
			return true
		}
	}
	return false
}

// regions returns the Within regions of content and the Except regions
// found inside them (or inside the whole content when Within is unset).
func (r *Rule) regions(content string) (within, except []region) {
	if r.within != nil {
		within = findRegions(r.within, content, 0)
	}
	if r.except == nil {
		return within, nil
	}
	if r.within == nil {
		return nil, findRegions(r.except, content, 0)
	}
	for _, w := range within {
		except = append(except, findRegions(r.except, content[w.start:w.end], w.start)...)
	}
	return within, except
}

// findRegions uses capture group 1 as the region when the pattern has one.
func findRegions(pattern *regexp.Regexp, content string, offset int) []region {
	var out []region
	for _, m := range pattern.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		if len(m) >= 4 && m[2] >= 0 {
			start, end = m[2], m[3]
		}
		out = append(out, region{start: offset + start, end: offset + end})
	}
	return out
}

// accessExpression returns the call chain around a match: from the
// nearest preceding ".from(" to the end of the match. It returns "" when
// no such call precedes the match within the same statement.
func accessExpression(content string, start, end int) string {
	from := strings.LastIndex(content[:start], ".from(")
	if from < 0 || !sameStatement(content[from:start]) {
		return ""
	}
	return content[from:end]
}

// sameStatement reports whether gap, which starts at a call, contains no
// statement break outside brackets and string literals. A break is a ';'
// or a newline whose next line does not continue the chain with '.'.
func sameStatement(gap string) bool {
	var (
		depth int
		quote byte
	)
	for i := 0; i < len(gap); i++ {
		c := gap[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				return false
			}
		case '\n':
			if depth == 0 && !continuesChain(gap[i+1:]) {
				return false
			}
		}
	}
	return true
}

func continuesChain(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest == "" || strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "?.")
}

// =============================================================================
// RULE SET
// =============================================================================

// RuleSet is an ordered list of compiled rules with a version.
type RuleSet struct {
	Declared string
	Rules    []*Rule
}

// NewRuleSet compiles specs in order.
func NewRuleSet(declared string, specs []RuleSpec) (*RuleSet, error) {
	rs := &RuleSet{Declared: declared}
	for _, spec := range specs {
		rule, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}

var fingerprintKey = []byte("checkloops-codemod-ruleset-key-0")

// Fingerprint hashes the rule table so that editing any rule changes it.
func (rs *RuleSet) Fingerprint() uint64 {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		panic(err)
	}
	for _, r := range rs.Rules {
		s := r.Spec
		for _, field := range []string{s.Name, string(s.Kind), s.Match, s.Replace, s.Scope, s.Unless, s.Within, s.Except} {
			var n [4]byte
			binary.LittleEndian.PutUint32(n[:], uint32(len(field)))
			h.Write(n[:])
			h.Write([]byte(field))
		}
	}
	return h.Sum64()
}

// Version identifies the rule table in the migration ledger.
func (rs *RuleSet) Version() string {
	return fmt.Sprintf("%s+%016x", rs.Declared, rs.Fingerprint())
}

// OrderingProblems lists table rules declared after a column rule.
// Such rules still run, but the column rules before them may miss matches.
func (rs *RuleSet) OrderingProblems() []string {
	var problems []string
	firstColumn := ""
	for _, r := range rs.Rules {
		switch r.Spec.Kind {
		case KindColumn:
			if firstColumn == "" {
				firstColumn = r.Spec.Name
			}
		case KindTable:
			if firstColumn != "" {
				problems = append(problems, fmt.Sprintf("table rule %q runs after column rule %q", r.Spec.Name, firstColumn))
			}
		}
	}
	return problems
}

// =============================================================================
// DEFAULT RULE TABLE
// =============================================================================

// DefaultRuleSpecs returns the rule table for consolidating deprecated tables
// into canonical, plus the user_id → auth_user_id column fixes that apply
// to the canonical table.
func DefaultRuleSpecs(canonical string, deprecated []string) []RuleSpec {
	var specs []RuleSpec
	for _, name := range deprecated {
		q := regexp.QuoteMeta(name)
		specs = append(specs,
			RuleSpec{
				Name:    name + "/call",
				Kind:    KindTable,
				Match:   `\.from\(\s*(['"` + "`" + `])` + q + `(['"` + "`" + `])\s*\)`,
				Replace: `.from(${1}` + canonical + `${2})`,
			},
			RuleSpec{
				Name:    name + "/query",
				Kind:    KindTable,
				Match:   `\b((?i:FROM|JOIN|INTO|UPDATE))(\s+)((?:public\.)?)` + q + `\b`,
				Replace: `${1}${2}${3}` + canonical,
			},
		)
	}
	for _, name := range deprecated {
		q := regexp.QuoteMeta(name)
		specs = append(specs, RuleSpec{
			Name:    name + "/prose",
			Kind:    KindText,
			Match:   `\b` + q + `(\s+table)\b`,
			Replace: canonical + `${1}`,
		})
	}

	scope := `\.from\(\s*['"` + "`" + `]` + regexp.QuoteMeta(canonical) + `['"` + "`" + `]\s*\)`
	specs = append(specs,
		RuleSpec{
			Name:    "user_id/eq",
			Kind:    KindColumn,
			Match:   `\.eq\(\s*(['"])user_id(['"])`,
			Replace: `.eq(${1}auth_user_id${2}`,
			Scope:   scope,
		},
		RuleSpec{
			Name:    "user_id/select",
			Kind:    KindColumn,
			Match:   `\buser_id\b`,
			Replace: `auth_user_id`,
			Scope:   scope,
			Within:  `\.select\(\s*('[^']*'|"[^"]*"|` + "`[^`]*`" + `)`,
			Except:  `\([^()]*\)`,
		},
		RuleSpec{
			Name:    "user_id/update",
			Kind:    KindColumn,
			Match:   `\buser_id(\s*:)`,
			Replace: `auth_user_id${1}`,
			Scope:   scope,
			Within:  `\.update\(\s*(\{[^}]*\})`,
		},
	)
	return specs
}
