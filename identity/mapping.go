package identity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// MAPPING ARTIFACT - Reviewable legacy name → account table
// =============================================================================

// MappingEntry is one row of the mapping artifact.
type MappingEntry struct {
	LegacyName           string     `json:"legacy_name"`
	CanonicalID          string     `json:"canonical_id"`
	DisplayName          string     `json:"display_name,omitempty"`
	Confidence           Confidence `json:"confidence"`
	NeedsManualReview    bool       `json:"needs_manual_review"`
	HasHistoricalRecords bool       `json:"has_historical_records"`
	NeedsProvisioning    bool       `json:"needs_provisioning"`
	SuggestedEmail       string     `json:"suggested_email,omitempty"`
	Confirmed            bool       `json:"confirmed"`
	Candidates           []Account  `json:"candidates,omitempty"`
}

// Usable reports whether writes may be made on behalf of this entry.
func (e MappingEntry) Usable() bool {
	return e.CanonicalID != "" && (e.Confidence == ConfidenceExact || e.Confirmed)
}

// Mapping is the mapping artifact. Safe for concurrent use; the review API
// confirms entries while other requests read them.
type Mapping struct {
	mu      sync.RWMutex
	entries []MappingEntry
	index   map[string]int
}

// ErrNoAccount is returned when a confirmation names no account.
var ErrNoAccount = errors.New("confirmation requires an account id")

// NewMapping builds a mapping from entries; later duplicates of a legacy name are dropped.
func NewMapping(entries []MappingEntry) *Mapping {
	m := &Mapping{index: make(map[string]int)}
	for _, e := range entries {
		if _, dup := m.index[e.LegacyName]; dup {
			continue
		}
		m.index[e.LegacyName] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m
}

// Map resolves every legacy name (staff list first, then names only seen in
// history) and flags which of them carry historical records.
func (r *Resolver) Map(names, historyNames []string, emailDomain string) *Mapping {
	withHistory := make(map[string]bool, len(historyNames))
	for _, n := range historyNames {
		withHistory[n] = true
	}
	var entries []MappingEntry
	for _, name := range append(append([]string(nil), names...), historyNames...) {
		if strings.TrimSpace(name) == "" {
			continue
		}
		id := r.Resolve(name)
		entries = append(entries, MappingEntry{
			LegacyName:           name,
			CanonicalID:          id.AccountID,
			DisplayName:          id.DisplayName,
			Confidence:           id.Confidence,
			NeedsManualReview:    id.Confidence != ConfidenceExact,
			HasHistoricalRecords: withHistory[name],
			NeedsProvisioning:    id.Confidence == ConfidenceNone,
			SuggestedEmail:       SuggestEmail(name, emailDomain),
			Candidates:           id.Candidates,
		})
	}
	return NewMapping(entries)
}

// SuggestEmail derives first.last@domain from a display name.
func SuggestEmail(name, domain string) string {
	if domain == "" {
		return ""
	}
	local := strings.ToLower(strings.TrimSpace(name))
	local = strings.NewReplacer("'", "", " ", ".", "-", ".").Replace(local)
	return local + "@" + domain
}

// Entries returns a copy of every entry in artifact order.
func (m *Mapping) Entries() []MappingEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MappingEntry(nil), m.entries...)
}

// Lookup returns the entry for a legacy name.
func (m *Mapping) Lookup(name string) (MappingEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[name]
	if !ok {
		return MappingEntry{}, false
	}
	return m.entries[i], true
}

// AccountFor returns the account id to write for name, or an
// AmbiguousIdentityError when the entry still needs a human.
func (m *Mapping) AccountFor(name string) (string, error) {
	e, ok := m.Lookup(name)
	if !ok {
		return "", &UnknownIdentityError{Name: name}
	}
	if !e.Usable() {
		return "", &generic.AmbiguousIdentityError{LegacyName: name, Confidence: string(e.Confidence)}
	}
	return e.CanonicalID, nil
}

// UnknownIdentityError reports a name missing from the mapping altogether.
type UnknownIdentityError struct {
	Name string
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("identity %q is not in the mapping", e.Name)
}

func (e *UnknownIdentityError) Unwrap() []error {
	return []error{generic.ErrAmbiguousIdentity, generic.ErrNotFound}
}

// Confirm records a human decision binding name to accountID.
func (m *Mapping) Confirm(name, accountID string) (MappingEntry, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return MappingEntry{}, ErrNoAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[name]
	if !ok {
		return MappingEntry{}, fmt.Errorf("%w: identity %q", generic.ErrNotFound, name)
	}
	e := &m.entries[i]
	e.CanonicalID = accountID
	e.Confirmed = true
	e.NeedsManualReview = false
	e.NeedsProvisioning = false
	return *e, nil
}

// Pending returns the entries still waiting for a human.
func (m *Mapping) Pending() []MappingEntry {
	var out []MappingEntry
	for _, e := range m.Entries() {
		if !e.Usable() {
			out = append(out, e)
		}
	}
	return out
}

// Tally counts usable entries as succeeded and the rest as skipped.
func (m *Mapping) Tally() generic.Tally {
	var t generic.Tally
	for _, e := range m.Entries() {
		if e.Usable() {
			t.Succeed()
		} else {
			t.Skip()
		}
	}
	return t
}

// =============================================================================
// CSV FORM
// =============================================================================

var csvHeader = []string{
	"legacy_name", "canonical_id", "display_name", "confidence", "needs_manual_review",
	"has_historical_records", "needs_provisioning", "suggested_email", "confirmed",
}

// WriteCSV writes the mapping in the reviewable CSV layout.
func (m *Mapping) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range m.Entries() {
		record := []string{
			e.LegacyName, e.CanonicalID, e.DisplayName, string(e.Confidence),
			strconv.FormatBool(e.NeedsManualReview), strconv.FormatBool(e.HasHistoricalRecords),
			strconv.FormatBool(e.NeedsProvisioning), e.SuggestedEmail, strconv.FormatBool(e.Confirmed),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a mapping written by WriteCSV, possibly edited by a reviewer.
func ReadCSV(r io.Reader) (*Mapping, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, &generic.ParseError{Field: "mapping", Raw: "csv", Cause: err.Error()}
	}
	if len(records) == 0 {
		return NewMapping(nil), nil
	}
	var entries []MappingEntry
	for line, rec := range records[1:] {
		flags := make([]bool, 0, 4)
		for _, col := range []int{4, 5, 6, 8} {
			v := strings.TrimSpace(rec[col])
			if v == "" {
				flags = append(flags, false)
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, &generic.ParseError{Field: csvHeader[col], Raw: v, Cause: fmt.Sprintf("line %d: not a boolean", line+2)}
			}
			flags = append(flags, b)
		}
		entries = append(entries, MappingEntry{
			LegacyName:           rec[0],
			CanonicalID:          strings.TrimSpace(rec[1]),
			DisplayName:          rec[2],
			Confidence:           Confidence(rec[3]),
			NeedsManualReview:    flags[0],
			HasHistoricalRecords: flags[1],
			NeedsProvisioning:    flags[2],
			SuggestedEmail:       rec[7],
			Confirmed:            flags[3],
		})
	}
	return NewMapping(entries), nil
}
