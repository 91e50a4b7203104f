/*
Package identity reconciles free-text legacy names with canonical accounts.

PURPOSE:
  Spreadsheet exports name people the way whoever typed them did
  ("Ben Howard"); the canonical table keys them by account id. The
  resolver proposes a match for every legacy name and grades it.

MATCHING POLICY (evaluated in order):
  1. exact    Case-sensitive equality with a canonical display name
  2. partial  Case-insensitive containment in either direction, on the
              whole name or token by token ("Ben Howard" ~ "Benjamin
              Howard"). Always needs a human before it is used.
  3. none     No candidate; an account must be provisioned out of band

  The canonical set order is the tie-break, so resolving the same name
  against an unchanged set always gives the same answer.

WRITES:
  The resolver never writes. Its output is a reviewable mapping
  (mapping.go) that downstream stages consult; only exact or human
  confirmed entries unlock a write.

SEE ALSO:
  - mapping.go: Mapping artifact, confirmation, CSV form
  - migration/normalize.go: Consumer of the mapping
*/
package identity

import (
	"context"
	"strings"

	"github.com/MagicManBen/CheckLoops/generic"
)

// Confidence grades a resolution.
type Confidence string

const (
	ConfidenceExact   Confidence = "exact"
	ConfidencePartial Confidence = "partial"
	ConfidenceNone    Confidence = "none"
)

// Account is a canonical account as read from the canonical table.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Identity is the resolution of one legacy name.
type Identity struct {
	LegacyName  string     `json:"legacy_name"`
	DisplayName string     `json:"display_name,omitempty"`
	AccountID   string     `json:"account_id,omitempty"`
	Confidence  Confidence `json:"confidence"`
	Candidates  []Account  `json:"candidates,omitempty"`
}

// Resolver matches legacy names against a fixed canonical set.
type Resolver struct {
	accounts []Account
}

func NewResolver(accounts []Account) *Resolver {
	return &Resolver{accounts: append([]Account(nil), accounts...)}
}

// Accounts returns the canonical set in tie-break order.
func (r *Resolver) Accounts() []Account {
	return append([]Account(nil), r.accounts...)
}

// Resolve grades legacyName against the canonical set.
func (r *Resolver) Resolve(legacyName string) Identity {
	id := Identity{LegacyName: legacyName, Confidence: ConfidenceNone}
	name := strings.TrimSpace(legacyName)
	if name == "" {
		return id
	}
	for _, acc := range r.accounts {
		if acc.DisplayName == name {
			id.Confidence = ConfidenceExact
			id.AccountID = acc.ID
			id.DisplayName = acc.DisplayName
			id.Candidates = []Account{acc}
			return id
		}
	}
	for _, acc := range r.accounts {
		if similar(name, acc.DisplayName) {
			id.Candidates = append(id.Candidates, acc)
		}
	}
	if len(id.Candidates) > 0 {
		id.Confidence = ConfidencePartial
		id.AccountID = id.Candidates[0].ID
		id.DisplayName = id.Candidates[0].DisplayName
	}
	return id
}

// similar implements the partial tier.
func similar(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if !strings.Contains(ta[i], tb[i]) && !strings.Contains(tb[i], ta[i]) {
			return false
		}
	}
	return true
}

// =============================================================================
// CANONICAL SET
// =============================================================================

// AccountSource names the table and columns holding canonical accounts.
type AccountSource struct {
	Table      string `yaml:"table"`
	IDColumn   string `yaml:"id_column"`
	NameColumn string `yaml:"name_column"`
}

// LoadAccounts reads the canonical set from the record store, in store order.
// Rows without an id or a name are ignored.
func LoadAccounts(ctx context.Context, store generic.RecordStore, src AccountSource) ([]Account, error) {
	rows, err := store.Select(ctx, src.Table, generic.Filter{})
	if err != nil {
		return nil, err
	}
	var accounts []Account
	for _, row := range rows {
		id, name := row.String(src.IDColumn), strings.TrimSpace(row.String(src.NameColumn))
		if id == "" || name == "" {
			continue
		}
		accounts = append(accounts, Account{ID: id, DisplayName: name})
	}
	return accounts, nil
}
