/*
Package sheet reads the legacy leave spreadsheet.

PURPOSE:
  The leave spreadsheet is exported as one CSV holding two side-by-side
  sections:

    history  Date | StaffName | Value
    staff    Name | Role | Entitlement | Dr <Day> Hours ... |
             Staff <Day> Hours (HH:MM) ...

  A row may carry a history entry, a staff entry, both or neither.
  Records are returned verbatim; classification and parsing happen in
  the migration package.

CLEANING:
  - Repeated header rows ("Name" / "Role") are dropped
  - Staff rows whose role is not a recognised role (timestamps pasted
    into the role column, blanks) are dropped
  - A staff name seen twice keeps its first row

SEE ALSO:
  - migration/normalize.go: Consumer
*/
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/MagicManBen/CheckLoops/generic"
)

// DefaultRoles are the staff roles found in the practice's spreadsheets.
var DefaultRoles = []string{"GP", "Nurse", "Admin", "Reception", "Manager", "Pharmacist", "Health Care Assistant", "GP Assistant"}

// HistoryRecord is one historical leave day.
type HistoryRecord struct {
	Line  int    `json:"line"`
	Date  string `json:"date"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StaffRecord is one staff row. Clinical and NonClinical hold the Monday to
// Friday cells of the two schedule column sets.
type StaffRecord struct {
	Line        int       `json:"line"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Entitlement string    `json:"entitlement"`
	Clinical    [5]string `json:"clinical"`
	NonClinical [5]string `json:"non_clinical"`
}

// HasClinicalCells reports whether any clinical schedule cell is populated.
func (s StaffRecord) HasClinicalCells() bool {
	for _, c := range s.Clinical {
		if c != "" {
			return true
		}
	}
	return false
}

// Workbook is the content of one export.
type Workbook struct {
	History []HistoryRecord `json:"history"`
	Staff   []StaffRecord   `json:"staff"`

	// Dropped counts staff rows removed by cleaning.
	Dropped int `json:"dropped"`
}

// HistoryNames returns the distinct names in the history section, in order.
func (w *Workbook) HistoryNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, h := range w.History {
		if !seen[h.Name] {
			seen[h.Name] = true
			names = append(names, h.Name)
		}
	}
	return names
}

// StaffNames returns the staff names, in order.
func (w *Workbook) StaffNames() []string {
	names := make([]string, len(w.Staff))
	for i, s := range w.Staff {
		names[i] = s.Name
	}
	return names
}

// Reader reads exports.
type Reader struct {
	Roles []string
}

func NewReader(roles []string) *Reader {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	return &Reader{Roles: roles}
}

var (
	datePrefix = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)
	weekdays   = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
)

type columns struct {
	date, staffName, value  int
	name, role, entitlement int
	clinical, nonClinical   [5]int
}

func locate(header []string) columns {
	c := columns{date: -1, staffName: -1, value: -1, name: -1, role: -1, entitlement: -1}
	for i := range c.clinical {
		c.clinical[i], c.nonClinical[i] = -1, -1
	}
	for i, raw := range header {
		h := strings.ToLower(strings.TrimSpace(raw))
		switch h {
		case "date":
			c.date = i
		case "staffname", "staff name":
			c.staffName = i
		case "value":
			c.value = i
		case "name":
			c.name = i
		case "role":
			c.role = i
		case "entitlement":
			c.entitlement = i
		}
		for d, day := range weekdays {
			if strings.HasPrefix(h, "dr "+day+" ") {
				c.clinical[d] = i
			}
			if strings.HasPrefix(h, "staff "+day+" ") {
				c.nonClinical[d] = i
			}
		}
	}
	return c
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Read parses an export. At least one of the two sections must be present.
func (r *Reader) Read(in io.Reader) (*Workbook, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Workbook{}, nil
		}
		return nil, &generic.ParseError{Field: "header", Raw: "csv", Cause: err.Error()}
	}
	cols := locate(header)
	hasHistory := cols.date >= 0 && cols.staffName >= 0
	hasStaff := cols.name >= 0 && cols.role >= 0
	if !hasHistory && !hasStaff {
		return nil, &generic.ParseError{Field: "header", Raw: strings.Join(header, ","), Cause: "neither Date/StaffName nor Name/Role columns present"}
	}

	wb := &Workbook{}
	seen := map[string]bool{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &generic.ParseError{Field: "row", Raw: fmt.Sprintf("line %d", line), Cause: err.Error()}
		}
		if hasHistory {
			date, name := cell(rec, cols.date), cell(rec, cols.staffName)
			if date != "" && name != "" && !strings.EqualFold(date, "date") {
				wb.History = append(wb.History, HistoryRecord{Line: line, Date: date, Name: name, Value: cell(rec, cols.value)})
			}
		}
		if hasStaff {
			name := cell(rec, cols.name)
			if name == "" {
				continue
			}
			role := cell(rec, cols.role)
			if !r.validRole(name, role) || seen[name] {
				wb.Dropped++
				continue
			}
			seen[name] = true
			s := StaffRecord{Line: line, Name: name, Role: role, Entitlement: cell(rec, cols.entitlement)}
			for d := range weekdays {
				s.Clinical[d] = cell(rec, cols.clinical[d])
				s.NonClinical[d] = cell(rec, cols.nonClinical[d])
			}
			wb.Staff = append(wb.Staff, s)
		}
	}
	return wb, nil
}

func (r *Reader) validRole(name, role string) bool {
	if role == "" || name == "Name" || role == "Role" || datePrefix.MatchString(role) {
		return false
	}
	lower := strings.ToLower(role)
	for _, valid := range r.Roles {
		if strings.Contains(lower, strings.ToLower(valid)) {
			return true
		}
	}
	return false
}
