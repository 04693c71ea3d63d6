package grade

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		QueryGrades(ctx context.Context, filter Filter) ([]Grade, error)
		CreateGrades(ctx context.Context, grades ...Grade) ([]Grade, error)
		DeleteGrades(ctx context.Context, filter Filter) ([]Grade, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	SubjectFinder interface {
		GetSubject(ctx context.Context, id string) (school.Subject, error)
	}

	// Recorder appends grades and, when notifications are enabled, emails the students about them.
	Recorder struct {
		repo Repository

		users    UserFinder
		subjects SubjectFinder
		mailer   core.EmailService
		logger   core.Logger
	}
)

func NewRecorder(repo Repository) *Recorder {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Recorder{repo: repo}
}

// WithNotifications enables the "grade posted" emails.
func (rec *Recorder) WithNotifications(users UserFinder, subjects SubjectFinder, mailer core.EmailService, logger core.Logger) *Recorder {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(subjects, "subjects"),
		vala.IsNotNil(mailer, "mailer"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	rec.users = users
	rec.subjects = subjects
	rec.mailer = mailer
	rec.logger = logger
	return rec
}

// RecordGrade appends a grade. The value must lie in [MinValue, MaxValue]
// and is stored rounded to two decimal places.
func (rec *Recorder) RecordGrade(ctx context.Context, ng NewGrade) (Grade, error) {
	if !(ng.Value >= MinValue && ng.Value <= MaxValue) {
		return Grade{}, core.NewRangeError("value", ng.Value, MinValue, MaxValue)
	}
	var flds []core.FieldError
	if ng.StudentID == "" {
		flds = append(flds, core.FieldError{Field: "student_id", Error: "this field is required"})
	}
	if ng.SubjectID == "" {
		flds = append(flds, core.FieldError{Field: "subject_id", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return Grade{}, core.NewValidationError(errors.New("invalid grade"), flds...)
	}

	created, err := rec.repo.CreateGrades(ctx, Grade{
		StudentID:  ng.StudentID,
		SubjectID:  ng.SubjectID,
		Value:      core.Round2(ng.Value),
		Kind:       core.CleanString(ng.Kind, true /* lower */),
		Notes:      core.CleanString(ng.Notes),
		RecordedBy: ng.RecordedBy,
		CreatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return Grade{}, errors.Wrap(err, "creating grade")
	}
	g := created[0]
	rec.notify(ctx, g)
	return g, nil
}

func (rec *Recorder) notify(ctx context.Context, g Grade) {
	if rec.mailer == nil {
		return
	}
	student, err := rec.users.GetByID(ctx, g.StudentID)
	if err != nil {
		rec.logger.Warn("grade notification: student lookup failed", err)
		return
	}
	subject, err := rec.subjects.GetSubject(ctx, g.SubjectID)
	if err != nil {
		rec.logger.Warn("grade notification: subject lookup failed", err)
		return
	}
	rec.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "New grade in " + subject.Name,
		TemplateName: "grade_posted",
		TemplateData: PostedEmailData{
			StudentName: student.Name,
			SubjectName: subject.Name,
			Value:       g.Value,
			Kind:        g.Kind,
			Notes:       g.Notes,
		},
	})
}

func (rec *Recorder) QueryGrades(ctx context.Context, filter Filter) ([]Grade, error) {
	return rec.repo.QueryGrades(ctx, filter)
}

// DeleteGrades removes grades entered by mistake.
func (rec *Recorder) DeleteGrades(ctx context.Context, ids ...string) ([]Grade, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	deleted, err := rec.repo.DeleteGrades(ctx, Filter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "deleting grades")
	}
	if len(deleted) == 0 {
		return nil, core.NewNotFoundError("grade", ids[0])
	}
	return deleted, nil
}

// Summary returns the count and average of the student's grades in the subject.
func (rec *Recorder) Summary(ctx context.Context, studentID, subjectID string) (Summary, error) {
	grades, err := rec.repo.QueryGrades(ctx, Filter{StudentIDs: []string{studentID}, SubjectIDs: []string{subjectID}})
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying grades")
	}
	s := Summarize(grades)
	s.StudentID, s.SubjectID = studentID, subjectID
	return s, nil
}

// Summarize counts and averages grades.
func Summarize(grades []Grade) Summary {
	var s Summary
	if len(grades) == 0 {
		return s
	}
	var sum float64
	for _, g := range grades {
		sum += g.Value
	}
	avg := sum / float64(len(grades))
	s.Count = len(grades)
	s.Average = &avg
	return s
}
