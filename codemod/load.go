package codemod

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/MagicManBen/CheckLoops/generic"
)

// RuleFile is the YAML form of a rule table:
//
//	version: v2
//	rules:
//	  - name: profiles/call
//	    kind: table
//	    match: \.from\('profiles'\)
//	    replace: .from('master_users')
type RuleFile struct {
	Version string     `yaml:"version"`
	Rules   []RuleSpec `yaml:"rules"`
}

// ParseRuleFile decodes and compiles a YAML rule table.
func ParseRuleFile(data []byte) (*RuleSet, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrInvalidRule, err)
	}
	if rf.Version == "" {
		return nil, fmt.Errorf("%w: rule file without version", generic.ErrInvalidRule)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule file without rules", generic.ErrInvalidRule)
	}
	return NewRuleSet(rf.Version, rf.Rules)
}

// LoadRuleFile reads a YAML rule table from any afs location.
func LoadRuleFile(ctx context.Context, fs afs.Service, location string) (*RuleSet, error) {
	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, &generic.FileIOError{Path: location, Op: "read", Err: err}
	}
	return ParseRuleFile(data)
}

// MarshalRuleFile renders a rule set back to YAML, e.g. to start a custom table from the defaults.
func MarshalRuleFile(rs *RuleSet) ([]byte, error) {
	rf := RuleFile{Version: rs.Declared}
	for _, r := range rs.Rules {
		rf.Rules = append(rf.Rules, r.Spec)
	}
	return yaml.Marshal(rf)
}
