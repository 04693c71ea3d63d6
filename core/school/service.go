package school

import (
	"context"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	NowFunc = time.Now // mockable

	ErrCodeExists = errors.New("a subject with this code already exists")
)

// CodeExistsError is the error stores return on a subject code collision.
func CodeExistsError() error {
	return core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
}

// NormalizeCode returns the stored form of a subject code.
func NormalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

type (
	// Repository persists the school reference data.
	// Implementations enforce: unique subject codes (CodeExistsError),
	// unique (student, class) enrollments and (teacher, subject, class) assignments (core.ConflictError).
	// Deleting a class removes its enrollments and assignments; deleting a subject removes its assignments.
	Repository interface {
		QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)
		CreateSubjects(ctx context.Context, subjects ...Subject) ([]Subject, error)
		UpdateSubjects(ctx context.Context, patch SubjectPatch, filter SubjectFilter) ([]Subject, error)
		DeleteSubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)

		QueryClasses(ctx context.Context, filter ClassFilter) ([]Class, error)
		CreateClasses(ctx context.Context, classes ...Class) ([]Class, error)
		UpdateClasses(ctx context.Context, patch ClassPatch, filter ClassFilter) ([]Class, error)
		DeleteClasses(ctx context.Context, filter ClassFilter) ([]Class, error)

		QueryEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)
		CreateEnrollments(ctx context.Context, enrollments ...Enrollment) ([]Enrollment, error)
		DeleteEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)

		QueryAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
		CreateAssignments(ctx context.Context, assignments ...Assignment) ([]Assignment, error)
		DeleteAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
	}

	// UserFinder looks up people by id.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserFinder
	}
)

func NewService(repo Repository, users UserFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()
	return &Service{repo: repo, users: users}
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	ns.Clean()
	subjects, err := svc.repo.CreateSubjects(ctx, Subject{
		Name:        ns.Name,
		Code:        ns.Code,
		Description: ns.Description,
		CreatedAt:   NowFunc().UTC(),
	})
	if err != nil {
		return Subject{}, errors.Wrap(err, "creating subject")
	}
	return subjects[0], nil
}

func (svc *Service) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter)
}

func (svc *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	subjects, err := svc.repo.QuerySubjects(ctx, SubjectFilter{IDs: []string{id}})
	if err != nil {
		return Subject{}, err
	}
	if len(subjects) == 0 {
		return Subject{}, core.NewNotFoundError("subject", id)
	}
	return subjects[0], nil
}

func (svc *Service) UpdateSubject(ctx context.Context, id string, us UpdateSubject) (Subject, error) {
	subjects, err := svc.repo.UpdateSubjects(ctx, SubjectPatch(us), SubjectFilter{IDs: []string{id}})
	if err != nil {
		return Subject{}, errors.Wrap(err, "updating subject")
	}
	if len(subjects) == 0 {
		return Subject{}, core.NewNotFoundError("subject", id)
	}
	return subjects[0], nil
}

func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	subjects, err := svc.repo.DeleteSubjects(ctx, SubjectFilter{IDs: []string{id}})
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if len(subjects) == 0 {
		return core.NewNotFoundError("subject", id)
	}
	return nil
}

// Classes

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	classes, err := svc.repo.CreateClasses(ctx, Class{
		Name:       core.CleanString(nc.Name),
		GradeLevel: core.CleanString(nc.GradeLevel),
		SchoolYear: nc.SchoolYear,
		CreatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}
	return classes[0], nil
}

func (svc *Service) QueryClasses(ctx context.Context, filter ClassFilter) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter)
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	classes, err := svc.repo.QueryClasses(ctx, ClassFilter{IDs: []string{id}})
	if err != nil {
		return Class{}, err
	}
	if len(classes) == 0 {
		return Class{}, core.NewNotFoundError("class", id)
	}
	return classes[0], nil
}

func (svc *Service) UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	classes, err := svc.repo.UpdateClasses(ctx, ClassPatch(uc), ClassFilter{IDs: []string{id}})
	if err != nil {
		return Class{}, errors.Wrap(err, "updating class")
	}
	if len(classes) == 0 {
		return Class{}, core.NewNotFoundError("class", id)
	}
	return classes[0], nil
}

func (svc *Service) DeleteClass(ctx context.Context, id string) error {
	classes, err := svc.repo.DeleteClasses(ctx, ClassFilter{IDs: []string{id}})
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if len(classes) == 0 {
		return core.NewNotFoundError("class", id)
	}
	return nil
}

// Enrollments & Assignments

// checkPerson makes sure the person exists and holds the role.
func (svc *Service) checkPerson(ctx context.Context, id, role, field string) error {
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if usr.Role != role {
		return core.NewFieldError(field, "user is not a "+role)
	}
	return nil
}

func (svc *Service) Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	if err := svc.checkPerson(ctx, ne.StudentID, user.RoleStudent, "student_id"); err != nil {
		return Enrollment{}, err
	}
	if _, err := svc.GetClass(ctx, ne.ClassID); err != nil {
		return Enrollment{}, err
	}
	enrollments, err := svc.repo.CreateEnrollments(ctx, Enrollment{
		StudentID: ne.StudentID,
		ClassID:   ne.ClassID,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enrollments[0], nil
}

func (svc *Service) QueryEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, filter)
}

func (svc *Service) DeleteEnrollment(ctx context.Context, id string) error {
	deleted, err := svc.repo.DeleteEnrollments(ctx, EnrollmentFilter{IDs: []string{id}})
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if len(deleted) == 0 {
		return core.NewNotFoundError("enrollment", id)
	}
	return nil
}

func (svc *Service) Assign(ctx context.Context, na NewAssignment) (Assignment, error) {
	if err := svc.checkPerson(ctx, na.TeacherID, user.RoleTeacher, "teacher_id"); err != nil {
		return Assignment{}, err
	}
	if _, err := svc.GetSubject(ctx, na.SubjectID); err != nil {
		return Assignment{}, err
	}
	if _, err := svc.GetClass(ctx, na.ClassID); err != nil {
		return Assignment{}, err
	}
	assignments, err := svc.repo.CreateAssignments(ctx, Assignment{
		TeacherID: na.TeacherID,
		SubjectID: na.SubjectID,
		ClassID:   na.ClassID,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return assignments[0], nil
}

func (svc *Service) QueryAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter)
}

func (svc *Service) DeleteAssignment(ctx context.Context, id string) error {
	deleted, err := svc.repo.DeleteAssignments(ctx, AssignmentFilter{IDs: []string{id}})
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if len(deleted) == 0 {
		return core.NewNotFoundError("assignment", id)
	}
	return nil
}

// Roster

func (svc *Service) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, EnrollmentFilter{
		StudentIDs: []string{studentID},
		ClassIDs:   []string{classID},
	})
	if err != nil {
		return false, err
	}
	return len(enrollments) > 0, nil
}

func (svc *Service) IsAssigned(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	assignments, err := svc.repo.QueryAssignments(ctx, AssignmentFilter{
		TeacherIDs: []string{teacherID},
		SubjectIDs: []string{subjectID},
		ClassIDs:   []string{classID},
	})
	if err != nil {
		return false, err
	}
	return len(assignments) > 0, nil
}
