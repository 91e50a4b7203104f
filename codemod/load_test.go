package codemod_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/generic"
)

const ruleYAML = `
version: v2
rules:
  - name: kiosk/call
    kind: table
    match: '\.from\((['"])kiosk_users(['"])\)'
    replace: '.from(${1}master_users${2})'
  - name: user_id/eq
    kind: column
    match: '\.eq\((['"])user_id'
    replace: '.eq(${1}auth_user_id'
    scope: 'master_users'
`

func TestParseRuleFile(t *testing.T) {
	rs, err := codemod.ParseRuleFile([]byte(ruleYAML))
	require.NoError(t, err)

	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "v2", rs.Declared)
	assert.Empty(t, rs.OrderingProblems())

	out, changes := codemod.ApplyContent(`db.from('kiosk_users').eq('user_id', id)`, rs)
	assert.Equal(t, `db.from('master_users').eq('auth_user_id', id)`, out)
	assert.Equal(t, 2, codemod.TotalChanges(changes))
}

func TestParseRuleFile_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"no version": "rules:\n  - {name: a, kind: table, match: x, replace: y}\n",
		"no rules":   "version: v1\n",
		"bad kind":   "version: v1\nrules:\n  - {name: a, kind: other, match: x, replace: y}\n",
		"bad regexp": "version: v1\nrules:\n  - {name: a, kind: table, match: '(', replace: y}\n",
		"not yaml":   "version: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codemod.ParseRuleFile([]byte(doc))
			assert.True(t, errors.Is(err, generic.ErrInvalidRule), "got %v", err)
		})
	}
}

func TestRuleFile_DefaultsSurviveRoundTrip(t *testing.T) {
	// GIVEN: The default table written out as YAML
	// WHEN: Loading it back from disk
	// THEN: The version string, fingerprint included, is unchanged

	defaults := defaultRules(t, "profiles", "1_staff_holiday_profiles")
	data, err := codemod.MarshalRuleFile(defaults)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := codemod.LoadRuleFile(context.Background(), afs.New(), path)

	require.NoError(t, err)
	assert.Equal(t, defaults.Version(), loaded.Version())
}
