package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MagicManBen/CheckLoops/migration"
	"github.com/MagicManBen/CheckLoops/sheet"
)

func TestClassify(t *testing.T) {
	c := migration.NewClassifier(nil)

	tests := []struct {
		name     string
		role     string
		clinical []string
		want     migration.Shape
	}{
		{"GP without schedule cells", "GP", nil, migration.ShapeSession},
		{"GP role is case-insensitive", " gp ", nil, migration.ShapeSession},
		{"nurse with clinical cell", "Nurse", []string{"", "2"}, migration.ShapeSession},
		{"nurse with only duration cells", "Nurse", []string{"", "", ""}, migration.ShapeDuration},
		{"GP assistant is not clinical", "GP Assistant", nil, migration.ShapeDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.role, tt.clinical))
		})
	}
}

func TestShapes_FirstRecordDecides(t *testing.T) {
	c := migration.NewClassifier(nil)
	staff := []sheet.StaffRecord{
		{Name: "Ben Howard", Role: "GP"},
		{Name: "Amy Lee", Role: "Nurse", NonClinical: [5]string{"07:30"}},
		{Name: "Ben Howard", Role: "Admin"},
	}

	shapes := c.Shapes(staff)

	assert.Equal(t, map[string]migration.Shape{
		"Ben Howard": migration.ShapeSession,
		"Amy Lee":    migration.ShapeDuration,
	}, shapes)
}
