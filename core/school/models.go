package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type (
	Subject struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Code        string    `json:"code"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}

	Class struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		GradeLevel string    `json:"grade_level"`
		SchoolYear int       `json:"school_year,omitempty"`
		CreatedAt  time.Time `json:"created_at"` // UTC
	}

	// Enrollment places a student in a class.
	Enrollment struct {
		ID        string    `json:"id"`
		StudentID string    `json:"student_id"`
		ClassID   string    `json:"class_id"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	// Assignment gives a teacher a subject to teach in a class.
	Assignment struct {
		ID        string    `json:"id"`
		TeacherID string    `json:"teacher_id"`
		SubjectID string    `json:"subject_id"`
		ClassID   string    `json:"class_id"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}
)

type NewSubject struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required,max=20,alphanum_"`
	Description string `json:"description"`
}

func (ns *NewSubject) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = NormalizeCode(ns.Code)
	ns.Description = core.CleanString(ns.Description)
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Code        *string `json:"code" validate:"omitempty,min=1,max=20,alphanum_"`
	Description *string `json:"description"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if us.Name != nil {
		us.Name = core.StringPtr(core.CleanString(*us.Name))
	}
	if us.Code != nil {
		us.Code = core.StringPtr(NormalizeCode(*us.Code))
	}
	if us.Description != nil {
		us.Description = core.StringPtr(core.CleanString(*us.Description))
	}
	return validate.Struct(us)
}

type NewClass struct {
	Name       string `json:"name" validate:"required"`
	GradeLevel string `json:"grade_level" validate:"required"`
	SchoolYear int    `json:"school_year" validate:"omitempty,min=1900,max=3000"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.GradeLevel = core.CleanString(nc.GradeLevel)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name       *string `json:"name" validate:"omitempty,min=1"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,min=1"`
	SchoolYear *int    `json:"school_year" validate:"omitempty,min=1900,max=3000"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		uc.Name = core.StringPtr(core.CleanString(*uc.Name))
	}
	if uc.GradeLevel != nil {
		uc.GradeLevel = core.StringPtr(core.CleanString(*uc.GradeLevel))
	}
	return validate.Struct(uc)
}

type NewEnrollment struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

func (ne NewEnrollment) Validate(validate *validator.Validate) error { return validate.Struct(ne) }

type NewAssignment struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

func (na NewAssignment) Validate(validate *validator.Validate) error { return validate.Struct(na) }

// Filters select records on every set (non-zero) field.
type (
	SubjectFilter struct {
		IDs  []string `query:"id"`
		Code string   `query:"code"`
	}

	ClassFilter struct {
		IDs        []string `query:"id"`
		SchoolYear int      `query:"school_year"`
	}

	EnrollmentFilter struct {
		IDs        []string `query:"id"`
		StudentIDs []string `query:"student_id"`
		ClassIDs   []string `query:"class_id"`
	}

	AssignmentFilter struct {
		IDs        []string `query:"id"`
		TeacherIDs []string `query:"teacher_id"`
		SubjectIDs []string `query:"subject_id"`
		ClassIDs   []string `query:"class_id"`
	}
)

func (f SubjectFilter) Match(sub Subject) bool {
	return matchAny(sub.ID, f.IDs) && (f.Code == "" || NormalizeCode(f.Code) == sub.Code)
}

func (f ClassFilter) Match(cls Class) bool {
	return matchAny(cls.ID, f.IDs) && (f.SchoolYear == 0 || f.SchoolYear == cls.SchoolYear)
}

func (f EnrollmentFilter) Match(enr Enrollment) bool {
	return matchAny(enr.ID, f.IDs) && matchAny(enr.StudentID, f.StudentIDs) && matchAny(enr.ClassID, f.ClassIDs)
}

func (f AssignmentFilter) Match(asg Assignment) bool {
	return matchAny(asg.ID, f.IDs) &&
		matchAny(asg.TeacherID, f.TeacherIDs) &&
		matchAny(asg.SubjectID, f.SubjectIDs) &&
		matchAny(asg.ClassID, f.ClassIDs)
}

func matchAny(v string, set []string) bool {
	return len(set) == 0 || core.InStrings(v, set)
}

// Patches merge their non-nil fields into matching records.
type (
	SubjectPatch struct {
		Name        *string
		Code        *string
		Description *string
	}

	ClassPatch struct {
		Name       *string
		GradeLevel *string
		SchoolYear *int
	}
)

func (p SubjectPatch) Apply(sub *Subject) {
	if p.Name != nil {
		sub.Name = *p.Name
	}
	if p.Code != nil {
		sub.Code = NormalizeCode(*p.Code)
	}
	if p.Description != nil {
		sub.Description = *p.Description
	}
}

func (p ClassPatch) Apply(cls *Class) {
	if p.Name != nil {
		cls.Name = *p.Name
	}
	if p.GradeLevel != nil {
		cls.GradeLevel = *p.GradeLevel
	}
	if p.SchoolYear != nil {
		cls.SchoolYear = *p.SchoolYear
	}
}
