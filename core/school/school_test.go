package school_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

type fixture struct {
	svc     *school.Service
	usrRepo user.Repository
	teacher user.User
	student user.User
	subject school.Subject
	class   school.Class
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	svc := school.NewService(inmemdb.NewSchoolRepository(db), user.NewService(usrRepo))
	ctx := context.Background()

	subject, err := svc.CreateSubject(ctx, school.NewSubject{Name: " Mathematics ", Code: " mat "})
	require.NoError(t, err)
	class, err := svc.CreateClass(ctx, school.NewClass{Name: "6A", GradeLevel: "6", SchoolYear: 2024})
	require.NoError(t, err)

	return fixture{
		svc:     svc,
		usrRepo: usrRepo,
		teacher: testutil.CreateUser(t, usrRepo, "Teach", "teach@test.cd", user.RoleTeacher, "", true),
		student: testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true),
		subject: subject,
		class:   class,
	}
}

func TestService_Subjects(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	assert.Equal(t, "Mathematics", f.subject.Name)
	assert.Equal(t, "MAT", f.subject.Code)

	_, err := f.svc.CreateSubject(ctx, school.NewSubject{Name: "Maths again", Code: "Mat"})
	assert.True(t, core.IsValidation(err), "duplicate code: got %v", err)

	phy, err := f.svc.CreateSubject(ctx, school.NewSubject{Name: "Physics", Code: "PHY"})
	require.NoError(t, err)

	_, err = f.svc.UpdateSubject(ctx, phy.ID, school.UpdateSubject{Code: core.StringPtr("MAT")})
	assert.True(t, core.IsValidation(err), "code collision on update: got %v", err)

	updated, err := f.svc.UpdateSubject(ctx, phy.ID, school.UpdateSubject{Name: core.StringPtr("Physics & Chemistry")})
	require.NoError(t, err)
	assert.Equal(t, "Physics & Chemistry", updated.Name)
	assert.Equal(t, "PHY", updated.Code)

	found, err := f.svc.QuerySubjects(ctx, school.SubjectFilter{Code: "phy"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, phy.ID, found[0].ID)

	require.NoError(t, f.svc.DeleteSubject(ctx, phy.ID))
	assert.True(t, core.IsNotFound(f.svc.DeleteSubject(ctx, phy.ID)))
	_, err = f.svc.GetSubject(ctx, phy.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Classes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	year := 2025
	updated, err := f.svc.UpdateClass(ctx, f.class.ID, school.UpdateClass{SchoolYear: &year})
	require.NoError(t, err)
	assert.Equal(t, 2025, updated.SchoolYear)
	assert.Equal(t, "6A", updated.Name)

	classes, err := f.svc.QueryClasses(ctx, school.ClassFilter{SchoolYear: 2024})
	require.NoError(t, err)
	assert.Empty(t, classes)

	_, err = f.svc.UpdateClass(ctx, "ghost", school.UpdateClass{SchoolYear: &year})
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func TestService_Roster(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name    string
		enroll  school.NewEnrollment
		wantErr func(error) bool
	}{
		{name: "teacher cannot enroll", enroll: school.NewEnrollment{StudentID: f.teacher.ID, ClassID: f.class.ID}, wantErr: core.IsValidation},
		{name: "unknown student", enroll: school.NewEnrollment{StudentID: "ghost", ClassID: f.class.ID}, wantErr: core.IsNotFound},
		{name: "unknown class", enroll: school.NewEnrollment{StudentID: f.student.ID, ClassID: "ghost"}, wantErr: core.IsNotFound},
		{name: "enroll", enroll: school.NewEnrollment{StudentID: f.student.ID, ClassID: f.class.ID}},
		{name: "enroll twice", enroll: school.NewEnrollment{StudentID: f.student.ID, ClassID: f.class.ID}, wantErr: core.IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Enroll(ctx, tt.enroll)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tt.wantErr(err), "got %v", err)
		})
	}

	na := school.NewAssignment{TeacherID: f.teacher.ID, SubjectID: f.subject.ID, ClassID: f.class.ID}
	_, err := f.svc.Assign(ctx, school.NewAssignment{TeacherID: f.student.ID, SubjectID: f.subject.ID, ClassID: f.class.ID})
	assert.True(t, core.IsValidation(err), "student cannot teach: got %v", err)
	_, err = f.svc.Assign(ctx, na)
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, na)
	assert.True(t, core.IsConflict(err), "assign twice: got %v", err)

	ok, err := f.svc.IsEnrolled(ctx, f.student.ID, f.class.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.IsAssigned(ctx, f.teacher.ID, f.subject.ID, f.class.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.IsAssigned(ctx, f.teacher.ID, "ghost", f.class.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting the class drops its roster
	require.NoError(t, f.svc.DeleteClass(ctx, f.class.ID))
	enrollments, err := f.svc.QueryEnrollments(ctx, school.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, enrollments)
	assignments, err := f.svc.QueryAssignments(ctx, school.AssignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestService_DeleteRoster(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	enr, err := f.svc.Enroll(ctx, school.NewEnrollment{StudentID: f.student.ID, ClassID: f.class.ID})
	require.NoError(t, err)
	asg, err := f.svc.Assign(ctx, school.NewAssignment{TeacherID: f.teacher.ID, SubjectID: f.subject.ID, ClassID: f.class.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteEnrollment(ctx, enr.ID))
	assert.True(t, core.IsNotFound(f.svc.DeleteEnrollment(ctx, enr.ID)))

	// deleting the subject drops its assignments
	require.NoError(t, f.svc.DeleteSubject(ctx, f.subject.ID))
	assert.True(t, core.IsNotFound(f.svc.DeleteAssignment(ctx, asg.ID)))
}
