package report

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

type (
	UserRepository interface {
		QueryUsers(ctx context.Context, filter user.Filter) ([]user.User, error)
	}

	// Filter narrows a report down to a class, a subject or the lessons of a teacher.
	Filter struct {
		ClassID   string `query:"class_id"`
		SubjectID string `query:"subject_id"`
		TeacherID string `query:"teacher_id"`
	}

	Service struct {
		users      UserRepository
		school     school.Repository
		attendance attendance.Repository
		grades     grade.Repository
		conf       core.ReportConfig
	}
)

func NewService(
	users UserRepository,
	schoolRepo school.Repository,
	attendanceRepo attendance.Repository,
	gradeRepo grade.Repository,
	conf core.ReportConfig,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(schoolRepo, "schoolRepo"),
		vala.IsNotNil(attendanceRepo, "attendanceRepo"),
		vala.IsNotNil(gradeRepo, "gradeRepo"),
	).CheckAndPanic()

	return &Service{
		users:      users,
		school:     schoolRepo,
		attendance: attendanceRepo,
		grades:     gradeRepo,
		conf:       conf,
	}
}

// Generate loads the records matching the filter and builds the report rows.
func (svc *Service) Generate(ctx context.Context, f Filter) ([]Row, error) {
	ds, err := svc.load(ctx, f)
	if err != nil {
		return nil, err
	}
	return Build(ds, Criteria{
		ClassID:       f.ClassID,
		SubjectID:     f.SubjectID,
		TeacherID:     f.TeacherID,
		PassAverage:   svc.conf.PassAverage,
		PassFrequency: svc.conf.PassFrequency,
	}), nil
}

func ids(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func (svc *Service) load(ctx context.Context, f Filter) (Dataset, error) {
	var (
		ds  Dataset
		err error
	)
	if ds.Enrollments, err = svc.school.QueryEnrollments(ctx, school.EnrollmentFilter{ClassIDs: ids(f.ClassID)}); err != nil {
		return ds, errors.Wrap(err, "querying enrollments")
	}
	if ds.Assignments, err = svc.school.QueryAssignments(ctx, school.AssignmentFilter{
		TeacherIDs: ids(f.TeacherID),
		SubjectIDs: ids(f.SubjectID),
		ClassIDs:   ids(f.ClassID),
	}); err != nil {
		return ds, errors.Wrap(err, "querying assignments")
	}
	if len(ds.Enrollments) == 0 || len(ds.Assignments) == 0 {
		return ds, nil
	}

	studentIDs := make([]string, 0, len(ds.Enrollments))
	for _, enr := range ds.Enrollments {
		studentIDs = appendUnique(studentIDs, enr.StudentID)
	}
	var subjectIDs, classIDs []string
	for _, asg := range ds.Assignments {
		subjectIDs = appendUnique(subjectIDs, asg.SubjectID)
		classIDs = appendUnique(classIDs, asg.ClassID)
	}

	if ds.Students, err = svc.users.QueryUsers(ctx, user.Filter{IDs: studentIDs}); err != nil {
		return ds, errors.Wrap(err, "querying students")
	}
	if ds.Subjects, err = svc.school.QuerySubjects(ctx, school.SubjectFilter{IDs: subjectIDs}); err != nil {
		return ds, errors.Wrap(err, "querying subjects")
	}
	if ds.Classes, err = svc.school.QueryClasses(ctx, school.ClassFilter{IDs: classIDs}); err != nil {
		return ds, errors.Wrap(err, "querying classes")
	}
	if ds.Presences, err = svc.attendance.QueryPresences(ctx, attendance.PresenceFilter{
		SubjectIDs: subjectIDs,
		ClassIDs:   classIDs,
	}); err != nil {
		return ds, errors.Wrap(err, "querying presences")
	}
	if ds.Grades, err = svc.grades.QueryGrades(ctx, grade.Filter{
		StudentIDs: studentIDs,
		SubjectIDs: subjectIDs,
	}); err != nil {
		return ds, errors.Wrap(err, "querying grades")
	}
	return ds, nil
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}
