package analyzer

import (
	"context"

	"github.com/MagicManBen/CheckLoops/generic"
)

// Verification is the terminal report of the rewrite half.
type Verification struct {
	Pass     bool             `json:"pass"`
	Residual []TableReference `json:"residual_references"`
	Strict   bool             `json:"strict"`
	Scan     *Report          `json:"-"`
}

// Err returns a VerificationFailure when residual references remain.
func (v *Verification) Err() error {
	if v.Pass {
		return nil
	}
	files := map[string]bool{}
	for _, r := range v.Residual {
		files[r.File] = true
	}
	return &generic.VerificationFailure{Residual: len(v.Residual), Files: len(files)}
}

// Verify re-scans the tree for the deprecated names. Descriptive references
// count as residue only in strict mode. Files that cannot be read fail the
// verification too, because their content is unknown.
func (a *Analyzer) Verify(ctx context.Context, tree Tree, deprecated []string, strict bool) (*Verification, error) {
	report, err := a.Scan(ctx, tree, deprecated)
	if err != nil {
		return nil, err
	}
	v := &Verification{Strict: strict, Scan: report, Residual: []TableReference{}}
	for _, ref := range report.References {
		if strict || ref.Hard() {
			v.Residual = append(v.Residual, ref)
		}
	}
	v.Pass = len(v.Residual) == 0 && report.Tally.Failed == 0
	return v, nil
}
