package migration

import (
	"strings"

	"github.com/MagicManBen/CheckLoops/sheet"
)

// DefaultClinicalRoles are the roles whose leave is counted in sessions.
var DefaultClinicalRoles = []string{"GP"}

// Classifier decides a person's Shape. It is the only place that branches
// on role; everything downstream consumes the Shape.
type Classifier struct {
	ClinicalRoles []string
}

func NewClassifier(clinicalRoles []string) Classifier {
	if len(clinicalRoles) == 0 {
		clinicalRoles = DefaultClinicalRoles
	}
	return Classifier{ClinicalRoles: clinicalRoles}
}

// Classify returns ShapeSession when role is a clinical role or any clinical
// schedule cell is populated, and ShapeDuration otherwise.
func (c Classifier) Classify(role string, clinicalCells []string) Shape {
	role = strings.TrimSpace(role)
	for _, clinical := range c.ClinicalRoles {
		if strings.EqualFold(role, clinical) {
			return ShapeSession
		}
	}
	for _, cell := range clinicalCells {
		if strings.TrimSpace(cell) != "" {
			return ShapeSession
		}
	}
	return ShapeDuration
}

// Shapes classifies every staff record once, keyed by name. The first record
// of a name decides. People only present in the history section are absent;
// callers treat them as ShapeDuration.
func (c Classifier) Shapes(staff []sheet.StaffRecord) map[string]Shape {
	shapes := make(map[string]Shape, len(staff))
	for _, s := range staff {
		if _, done := shapes[s.Name]; done {
			continue
		}
		shapes[s.Name] = c.Classify(s.Role, s.Clinical[:])
	}
	return shapes
}
