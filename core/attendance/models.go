package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Token lets the students of a class check in for a lesson until it expires.
type Token struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	SubjectID  string    `json:"subject_id"`
	ClassID    string    `json:"class_id"`
	LessonDate string    `json:"lesson_date"`
	TeacherID  string    `json:"teacher_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	ExpiresAt  time.Time `json:"expires_at"` // UTC
	Active     bool      `json:"active"`
}

// IsRedeemable reports whether students may still check in with the token at now.
func (t Token) IsRedeemable(now time.Time) bool {
	return t.Active && !now.After(t.ExpiresAt)
}

// IsLive reports whether the token blocks the issuance of another one for its lesson at now.
func (t Token) IsLive(now time.Time) bool {
	return t.Active && t.ExpiresAt.After(now)
}

// Presence records whether a student attended a lesson. There is at most one
// Presence per (student, subject, class, lesson date).
type Presence struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SubjectID  string    `json:"subject_id"`
	ClassID    string    `json:"class_id"`
	LessonDate string    `json:"lesson_date"`
	Present    bool      `json:"present"`
	TokenUsed  bool      `json:"token_used"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type NewToken struct {
	TeacherID  string `json:"teacher_id" validate:"required"`
	SubjectID  string `json:"subject_id" validate:"required"`
	ClassID    string `json:"class_id" validate:"required"`
	LessonDate string `json:"lesson_date" validate:"required,lessondate"`
	TTLMinutes int    `json:"ttl_minutes" validate:"min=0"` // 0: default TTL
}

func (nt NewToken) Validate(validate *validator.Validate) error { return validate.Struct(nt) }

type NewPresence struct {
	StudentID  string `json:"student_id" validate:"required"`
	SubjectID  string `json:"subject_id" validate:"required"`
	ClassID    string `json:"class_id" validate:"required"`
	LessonDate string `json:"lesson_date" validate:"required,lessondate"`
	Present    bool   `json:"present"`
	TokenUsed  bool   `json:"token_used"`
	Notes      string `json:"notes"`
}

type RollCallEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
	Notes     string `json:"notes"`
}

// RollCall is a teacher's presence submission for a whole class.
type RollCall struct {
	TeacherID  string          `json:"teacher_id"`
	ClassID    string          `json:"class_id" validate:"required"`
	SubjectID  string          `json:"subject_id" validate:"required"`
	LessonDate string          `json:"lesson_date" validate:"required,lessondate"`
	Entries    []RollCallEntry `json:"entries" validate:"required,min=1,dive"`
}

func (rc RollCall) Validate(validate *validator.Validate) error { return validate.Struct(rc) }

type Redemption struct {
	Code string `json:"code" validate:"required"`
}

func (r *Redemption) Validate(validate *validator.Validate) error {
	r.Code = core.CleanString(r.Code, true /* lower */)
	return validate.Struct(r)
}

// TokenFilter selects tokens on every set field.
// ExpiresAfter and ExpiresBefore are strict bounds on ExpiresAt.
type TokenFilter struct {
	IDs           []string  `query:"id"`
	Code          string    `query:"code"`
	TeacherID     string    `query:"teacher_id"`
	SubjectID     string    `query:"subject_id"`
	ClassID       string    `query:"class_id"`
	LessonDate    string    `query:"lesson_date"`
	Active        *bool     `query:"active"`
	ExpiresAfter  time.Time `query:"-"`
	ExpiresBefore time.Time `query:"-"`
}

func (f TokenFilter) Match(tok Token) bool {
	switch {
	case len(f.IDs) > 0 && !core.InStrings(tok.ID, f.IDs),
		f.Code != "" && tok.Code != f.Code,
		f.TeacherID != "" && tok.TeacherID != f.TeacherID,
		f.SubjectID != "" && tok.SubjectID != f.SubjectID,
		f.ClassID != "" && tok.ClassID != f.ClassID,
		f.LessonDate != "" && tok.LessonDate != f.LessonDate,
		f.Active != nil && tok.Active != *f.Active,
		!f.ExpiresAfter.IsZero() && !tok.ExpiresAt.After(f.ExpiresAfter),
		!f.ExpiresBefore.IsZero() && !tok.ExpiresAt.Before(f.ExpiresBefore):
		return false
	}
	return true
}

type TokenPatch struct {
	Active *bool
}

func (p TokenPatch) Apply(tok *Token) {
	if p.Active != nil {
		tok.Active = *p.Active
	}
}

// PresenceFilter selects presence records on every set field.
type PresenceFilter struct {
	IDs        []string `query:"id"`
	StudentIDs []string `query:"student_id"`
	SubjectIDs []string `query:"subject_id"`
	ClassIDs   []string `query:"class_id"`
	LessonDate string   `query:"lesson_date"`
	Present    *bool    `query:"present"`
}

func (f PresenceFilter) Match(p Presence) bool {
	switch {
	case len(f.IDs) > 0 && !core.InStrings(p.ID, f.IDs),
		len(f.StudentIDs) > 0 && !core.InStrings(p.StudentID, f.StudentIDs),
		len(f.SubjectIDs) > 0 && !core.InStrings(p.SubjectID, f.SubjectIDs),
		len(f.ClassIDs) > 0 && !core.InStrings(p.ClassID, f.ClassIDs),
		f.LessonDate != "" && p.LessonDate != f.LessonDate,
		f.Present != nil && p.Present != *f.Present:
		return false
	}
	return true
}

type PresencePatch struct {
	Present   *bool
	TokenUsed *bool
	Notes     *string
	UpdatedAt time.Time
}

func (p PresencePatch) Apply(rec *Presence) {
	if p.Present != nil {
		rec.Present = *p.Present
	}
	if p.TokenUsed != nil {
		rec.TokenUsed = *p.TokenUsed
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
	if !p.UpdatedAt.IsZero() {
		rec.UpdatedAt = p.UpdatedAt
	}
}
