package codemod_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/generic"
)

func defaultRules(t *testing.T, deprecated ...string) *codemod.RuleSet {
	t.Helper()
	rs, err := codemod.NewRuleSet("v1", codemod.DefaultRuleSpecs("master_users", deprecated))
	require.NoError(t, err)
	return rs
}

// =============================================================================
// SINGLE RULES
// =============================================================================

func TestRule_CallRewrite(t *testing.T) {
	rule := codemod.MustCompile(codemod.DefaultRuleSpecs("master_users", []string{"profiles"})[0])

	out, n := rule.Apply(`await db.from("profiles").select('*')`)

	assert.Equal(t, 1, n)
	assert.Equal(t, `await db.from("master_users").select('*')`, out)
}

func TestRule_QueryRewriteKeepsSchemaAndKeyword(t *testing.T) {
	rule := codemod.MustCompile(codemod.DefaultRuleSpecs("master_users", []string{"profiles"})[1])

	out, n := rule.Apply("select * from public.profiles p join profiles q on true")

	assert.Equal(t, 2, n)
	assert.Equal(t, "select * from public.master_users p join master_users q on true", out)
}

func TestRule_ColumnRuleNeedsCanonicalScope(t *testing.T) {
	// GIVEN: The user_id equality rule
	// WHEN: Applied to a canonical and a non-canonical expression
	// THEN: Only the canonical expression is rewritten

	var eq codemod.RuleSpec
	for _, s := range codemod.DefaultRuleSpecs("master_users", nil) {
		if s.Name == "user_id/eq" {
			eq = s
		}
	}
	rule := codemod.MustCompile(eq)

	in := "db.from('master_users').eq('user_id', id);\ndb.from('training').eq('user_id', id);"
	out, n := rule.Apply(in)

	assert.Equal(t, 1, n)
	assert.Equal(t, "db.from('master_users').eq('auth_user_id', id);\ndb.from('training').eq('user_id', id);", out)
}

func TestRule_UnlessMarkerSkipsMatch(t *testing.T) {
	rule := codemod.MustCompile(codemod.RuleSpec{
		Name:    "greeting",
		Kind:    codemod.KindText,
		Match:   `hello \w+`,
		Replace: `hello world`,
		Unless:  `hello there`,
	})

	out, n := rule.Apply("hello there, hello you")

	assert.Equal(t, 1, n)
	assert.Equal(t, "hello there, hello world", out)
}

func TestCompile_RejectsBadRules(t *testing.T) {
	cases := []codemod.RuleSpec{
		{Kind: codemod.KindTable, Match: "x"},
		{Name: "kind", Kind: "other", Match: "x"},
		{Name: "regex", Kind: codemod.KindTable, Match: "("},
		{Name: "empty", Kind: codemod.KindTable, Match: "x*"},
	}
	for _, spec := range cases {
		_, err := codemod.Compile(spec)
		assert.True(t, errors.Is(err, generic.ErrInvalidRule), "rule %q", spec.Name)
	}
}

// =============================================================================
// RULE SETS
// =============================================================================

func TestApplyContent_IsIdempotent(t *testing.T) {
	// GIVEN: Content with table and column references
	// WHEN: The rule set is applied twice
	// THEN: The second pass changes nothing

	rs := defaultRules(t, "profiles", "kiosk_users")
	in := "const {data} = await supabase.from('profiles').select('id, user_id').eq('user_id', uid);\n" +
		"// read the kiosk_users table\n" +
		"const q = 'UPDATE kiosk_users SET pin = 1';\n"

	once, changes := codemod.ApplyContent(in, rs)
	twice, again := codemod.ApplyContent(once, rs)

	assert.Equal(t, once, twice)
	assert.Empty(t, again)
	assert.Equal(t, 5, codemod.TotalChanges(changes))
	assert.Equal(t, "const {data} = await supabase.from('master_users').select('id, auth_user_id').eq('auth_user_id', uid);\n"+
		"// read the master_users table\n"+
		"const q = 'UPDATE master_users SET pin = 1';\n", once)
}

func TestApplyContent_ColumnBeforeTableMissesMatches(t *testing.T) {
	// GIVEN: A rule table that runs a column rule before the table rule
	// WHEN: Applied once
	// THEN: The column reference is missed but nothing is corrupted

	specs := codemod.DefaultRuleSpecs("master_users", []string{"profiles"})
	var table, column codemod.RuleSpec
	for _, s := range specs {
		switch s.Name {
		case "profiles/call":
			table = s
		case "user_id/eq":
			column = s
		}
	}
	rs, err := codemod.NewRuleSet("bad-order", []codemod.RuleSpec{column, table})
	require.NoError(t, err)

	out, _ := codemod.ApplyContent("db.from('profiles').eq('user_id', 1)", rs)

	assert.Equal(t, "db.from('master_users').eq('user_id', 1)", out)
	assert.NotEmpty(t, rs.OrderingProblems())
	assert.Empty(t, defaultRules(t, "profiles").OrderingProblems())
}

func TestRuleSet_VersionTracksRules(t *testing.T) {
	a := defaultRules(t, "profiles")
	b := defaultRules(t, "profiles")
	c := defaultRules(t, "profiles", "kiosk_users")

	assert.Equal(t, a.Version(), b.Version())
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestApplyContent_SelectRewritesEveryColumnInOnePass(t *testing.T) {
	// GIVEN: A select list naming user_id twice at top level and once in an embedded resource
	// WHEN: The rule set is applied twice
	// THEN: The first pass rewrites both top-level columns, leaves the embedded
	// table's column alone, and the second pass changes nothing

	rs := defaultRules(t, "profiles")
	in := "const { data } = await db.from('profiles').select('user_id, sites(user_id), manager_user_id, user_id');"

	once, changes := codemod.ApplyContent(in, rs)
	twice, again := codemod.ApplyContent(once, rs)

	assert.Equal(t, "const { data } = await db.from('master_users').select('auth_user_id, sites(user_id), manager_user_id, auth_user_id');", once)
	assert.Equal(t, []codemod.RuleChange{
		{Rule: "profiles/call", Kind: codemod.KindTable, Count: 1},
		{Rule: "user_id/select", Kind: codemod.KindColumn, Count: 2},
	}, changes)
	assert.Equal(t, once, twice)
	assert.Empty(t, again)
}

func TestApplyContent_SelectRewritesColumnsBetweenEmbeddedResources(t *testing.T) {
	rs := defaultRules(t)
	in := "db.from('master_users').select('sites(user_id), user_id, teams(id)')"

	once, _ := codemod.ApplyContent(in, rs)

	assert.Equal(t, "db.from('master_users').select('sites(user_id), auth_user_id, teams(id)')", once)
}

func TestApplyContent_UpdateRewritesEveryKey(t *testing.T) {
	rs := defaultRules(t)
	in := "db.from('master_users').update({ user_id: a, name: user_id, user_id : b })"

	once, changes := codemod.ApplyContent(in, rs)
	_, again := codemod.ApplyContent(once, rs)

	assert.Equal(t, "db.from('master_users').update({ auth_user_id: a, name: user_id, auth_user_id : b })", once)
	assert.Equal(t, 2, codemod.TotalChanges(changes))
	assert.Empty(t, again)
}

func TestApplyContent_ScopeStopsAtStatementBoundary(t *testing.T) {
	// GIVEN: Semicolon-less statements, the first on the canonical table
	// WHEN: The rule set is applied
	// THEN: Columns of the second statement's table are not touched

	rs := defaultRules(t, "profiles")
	in := "const a = await db.from('profiles').select('*')\n" +
		"const b = await db.from('training_records').select('id, user_id').eq('user_id', uid)\n" +
		"const c = await db.from('profiles').select('id')\n" +
		"const d = other.eq('user_id', uid)\n"

	out, changes := codemod.ApplyContent(in, rs)

	assert.Equal(t, "const a = await db.from('master_users').select('*')\n"+
		"const b = await db.from('training_records').select('id, user_id').eq('user_id', uid)\n"+
		"const c = await db.from('master_users').select('id')\n"+
		"const d = other.eq('user_id', uid)\n", out)
	assert.Equal(t, []codemod.RuleChange{{Rule: "profiles/call", Kind: codemod.KindTable, Count: 2}}, changes)
}

func TestApplyContent_ScopeFollowsMultilineChain(t *testing.T) {
	rs := defaultRules(t)
	in := "const { data } = await supabase\n" +
		"  .from('master_users')\n" +
		"  .select(`\n    full_name,\n    user_id\n  `)\n" +
		"  .eq('user_id', uid)\n"

	out, changes := codemod.ApplyContent(in, rs)

	assert.Equal(t, "const { data } = await supabase\n"+
		"  .from('master_users')\n"+
		"  .select(`\n    full_name,\n    auth_user_id\n  `)\n"+
		"  .eq('auth_user_id', uid)\n", out)
	assert.Equal(t, 2, codemod.TotalChanges(changes))
}
