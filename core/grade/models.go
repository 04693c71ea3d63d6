package grade

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Bounds of a grade value, inclusive.
const (
	MinValue = 0.0
	MaxValue = 10.0
)

// Grade is one mark of a student in a subject. Grades accumulate, they are never replaced.
type Grade struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SubjectID  string    `json:"subject_id"`
	Value      float64   `json:"value"`
	Kind       string    `json:"kind,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	RecordedBy string    `json:"recorded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type NewGrade struct {
	StudentID  string  `json:"student_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	Value      float64 `json:"value"`
	Kind       string  `json:"kind" validate:"max=30"`
	Notes      string  `json:"notes"`
	RecordedBy string  `json:"-"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.Kind = core.CleanString(ng.Kind, true /* lower */)
	ng.Notes = core.CleanString(ng.Notes)
	return validate.Struct(ng)
}

// Summary aggregates the grades of a student in a subject.
// Average is nil when there are no grades.
type Summary struct {
	StudentID string   `json:"student_id"`
	SubjectID string   `json:"subject_id"`
	Count     int      `json:"count"`
	Average   *float64 `json:"average"`
}

// Filter selects grades on every set field.
type Filter struct {
	IDs        []string `query:"id"`
	StudentIDs []string `query:"student_id"`
	SubjectIDs []string `query:"subject_id"`
	RecordedBy string   `query:"recorded_by"`
	Kind       string   `query:"kind"`
}

func (f Filter) Match(g Grade) bool {
	switch {
	case len(f.IDs) > 0 && !core.InStrings(g.ID, f.IDs),
		len(f.StudentIDs) > 0 && !core.InStrings(g.StudentID, f.StudentIDs),
		len(f.SubjectIDs) > 0 && !core.InStrings(g.SubjectID, f.SubjectIDs),
		f.RecordedBy != "" && g.RecordedBy != f.RecordedBy,
		f.Kind != "" && g.Kind != f.Kind:
		return false
	}
	return true
}

// PostedEmailData feeds the grade_posted email templates.
type PostedEmailData struct {
	StudentName string
	SubjectName string
	Value       float64
	Kind        string
	Notes       string
}
