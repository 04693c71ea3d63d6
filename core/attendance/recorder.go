package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var NowFunc = time.Now // mockable

type (
	// Repository persists tokens and presence records. Implementations reject
	// duplicate token codes and duplicate presence keys with core.ConflictError.
	Repository interface {
		QueryTokens(ctx context.Context, filter TokenFilter) ([]Token, error)
		CreateTokens(ctx context.Context, tokens ...Token) ([]Token, error)
		UpdateTokens(ctx context.Context, patch TokenPatch, filter TokenFilter) ([]Token, error)

		QueryPresences(ctx context.Context, filter PresenceFilter) ([]Presence, error)
		CreatePresences(ctx context.Context, presences ...Presence) ([]Presence, error)
		UpdatePresences(ctx context.Context, patch PresencePatch, filter PresenceFilter) ([]Presence, error)
	}

	// Roster answers who belongs to which class. A nil Roster disables the membership checks.
	Roster interface {
		IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
		IsAssigned(ctx context.Context, teacherID, subjectID, classID string) (bool, error)
	}
)

// RollCallFailure names a roll-call entry that could not be recorded.
type RollCallFailure struct {
	StudentID string
	Err       error
}

// RollCallError lists the failed entries of a roll-call. The other entries were recorded.
type RollCallError struct {
	Failures []RollCallFailure
}

func (e *RollCallError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.StudentID, f.Err))
	}
	return fmt.Sprintf("roll-call failed for %d student(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *RollCallError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// StudentIDs returns the ids of the failed students, in submission order.
func (e *RollCallError) StudentIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.StudentID)
	}
	return ids
}

// Recorder keeps one presence record per (student, subject, class, lesson date).
type Recorder struct {
	repo   Repository
	roster Roster
	locks  core.KeyedMutex
}

func NewRecorder(repo Repository, roster Roster) *Recorder {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Recorder{repo: repo, roster: roster}
}

func presenceKey(studentID, subjectID, classID, lessonDate string) string {
	return core.CompositeKey(studentID, subjectID, classID, lessonDate)
}

func checkLessonKey(subjectID, classID, lessonDate string) error {
	var flds []core.FieldError
	if subjectID == "" {
		flds = append(flds, core.FieldError{Field: "subject_id", Error: "this field is required"})
	}
	if classID == "" {
		flds = append(flds, core.FieldError{Field: "class_id", Error: "this field is required"})
	}
	if !core.IsLessonDate(lessonDate) {
		flds = append(flds, core.FieldError{Field: "lesson_date", Error: "must be a calendar date formatted as YYYY-MM-DD"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid lesson"), flds...)
	}
	return nil
}

// RecordPresence inserts the presence record of the key, or overwrites its
// Present and TokenUsed flags (and Notes when given) if it already exists.
func (rec *Recorder) RecordPresence(ctx context.Context, np NewPresence) (Presence, error) {
	if err := checkLessonKey(np.SubjectID, np.ClassID, np.LessonDate); err != nil {
		return Presence{}, err
	}
	if np.StudentID == "" {
		return Presence{}, core.NewFieldError("student_id", "this field is required")
	}

	unlock := rec.locks.Lock(presenceKey(np.StudentID, np.SubjectID, np.ClassID, np.LessonDate))
	defer unlock()

	key := PresenceFilter{
		StudentIDs: []string{np.StudentID},
		SubjectIDs: []string{np.SubjectID},
		ClassIDs:   []string{np.ClassID},
		LessonDate: np.LessonDate,
	}
	existing, err := rec.repo.QueryPresences(ctx, key)
	if err != nil {
		return Presence{}, errors.Wrap(err, "looking up presence")
	}
	now := NowFunc().UTC()
	notes := core.CleanString(np.Notes)

	if len(existing) > 0 {
		patch := PresencePatch{Present: &np.Present, TokenUsed: &np.TokenUsed, UpdatedAt: now}
		if notes != "" {
			patch.Notes = &notes
		}
		updated, err := rec.repo.UpdatePresences(ctx, patch, PresenceFilter{IDs: []string{existing[0].ID}})
		if err != nil {
			return Presence{}, errors.Wrap(err, "updating presence")
		}
		if len(updated) == 0 {
			return Presence{}, core.NewNotFoundError("presence", existing[0].ID)
		}
		return updated[0], nil
	}

	created, err := rec.repo.CreatePresences(ctx, Presence{
		StudentID:  np.StudentID,
		SubjectID:  np.SubjectID,
		ClassID:    np.ClassID,
		LessonDate: np.LessonDate,
		Present:    np.Present,
		TokenUsed:  np.TokenUsed,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Presence{}, errors.Wrap(err, "creating presence")
	}
	return created[0], nil
}

// RecordRollCall records every entry in turn. Entries that fail are reported
// in a *RollCallError next to the recorded ones; nothing is rolled back.
func (rec *Recorder) RecordRollCall(ctx context.Context, rc RollCall) ([]Presence, error) {
	if err := checkLessonKey(rc.SubjectID, rc.ClassID, rc.LessonDate); err != nil {
		return nil, err
	}
	if len(rc.Entries) == 0 {
		return nil, core.NewFieldError("entries", "this field is required")
	}
	if rec.roster != nil && rc.TeacherID != "" {
		ok, err := rec.roster.IsAssigned(ctx, rc.TeacherID, rc.SubjectID, rc.ClassID)
		if err != nil {
			return nil, errors.Wrap(err, "checking assignment")
		}
		if !ok {
			return nil, core.NewFieldError("teacher_id", "teacher does not teach this subject in this class")
		}
	}

	records := make([]Presence, 0, len(rc.Entries))
	var failures []RollCallFailure
	for _, entry := range rc.Entries {
		p, err := rec.recordEntry(ctx, rc, entry)
		if err != nil {
			failures = append(failures, RollCallFailure{StudentID: entry.StudentID, Err: err})
			continue
		}
		records = append(records, p)
	}
	if len(failures) > 0 {
		return records, &RollCallError{Failures: failures}
	}
	return records, nil
}

func (rec *Recorder) recordEntry(ctx context.Context, rc RollCall, entry RollCallEntry) (Presence, error) {
	if entry.StudentID == "" {
		return Presence{}, core.NewFieldError("student_id", "this field is required")
	}
	if err := rec.checkEnrolled(ctx, entry.StudentID, rc.ClassID); err != nil {
		return Presence{}, err
	}
	return rec.RecordPresence(ctx, NewPresence{
		StudentID:  entry.StudentID,
		SubjectID:  rc.SubjectID,
		ClassID:    rc.ClassID,
		LessonDate: rc.LessonDate,
		Present:    entry.Present,
		Notes:      entry.Notes,
	})
}

func (rec *Recorder) checkEnrolled(ctx context.Context, studentID, classID string) error {
	if rec.roster == nil {
		return nil
	}
	ok, err := rec.roster.IsEnrolled(ctx, studentID, classID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return core.NewFieldError("student_id", "student is not enrolled in this class")
	}
	return nil
}

func (rec *Recorder) QueryPresences(ctx context.Context, filter PresenceFilter) ([]Presence, error) {
	return rec.repo.QueryPresences(ctx, filter)
}
