package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

const goodPwd = "Mwana-Shule9"

func TestNewUser_Validate(t *testing.T) {
	validate, _ := testutil.Validator()

	newUser := func(role, pwd string) user.NewUser {
		return user.NewUser{Name: " Awe Bo ", Email: " AWE@test.cd", Role: role, Password: pwd, PasswordConfirm: pwd}
	}
	tests := []struct {
		name    string
		nu      user.NewUser
		wantTag string // "": valid
	}{
		{name: "valid", nu: newUser("teacher", goodPwd)},
		{name: "upper-cased role", nu: newUser("STUDENT", goodPwd)},
		{name: "unknown role", nu: newUser("janitor", goodPwd), wantTag: "role"},
		{name: "too short", nu: newUser("student", "Ab1!"), wantTag: "pwdminlen"},
		{name: "whitespace", nu: newUser("student", "Mwana Shule9"), wantTag: "pwdnospace"},
		{name: "all numeric", nu: newUser("student", "1234567890123"), wantTag: "pwdnotallnum"},
		{name: "not complex", nu: newUser("student", "mwanashule9"), wantTag: "pwdcplx"},
		{name: "similar to email", nu: newUser("student", "Awe@test.cd1"), wantTag: "pwdtoosim"},
		{name: "common", nu: newUser("student", "P@ssw0rd"), wantTag: "pwdnocommon"},
		{name: "confirmation mismatch", nu: user.NewUser{Name: "Awe", Email: "awe@test.cd", Role: "admin", Password: goodPwd, PasswordConfirm: "lol"}, wantTag: "eqfield"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantTag == "" {
				require.NoError(t, err)
				assert.Equal(t, "Awe Bo", tt.nu.Name)
				assert.Equal(t, "awe@test.cd", tt.nu.Email)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	svc := user.NewService(inmemdb.NewUserRepository(db))

	usr, err := svc.Create(ctx, user.NewUser{Name: " Awe ", Email: "AWE@test.cd ", Role: "Teacher", Password: goodPwd})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "Awe", usr.Name)
	assert.Equal(t, "awe@test.cd", usr.Email)
	assert.Equal(t, user.RoleTeacher, usr.Role)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(goodPwd))

	t.Run("unique email", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "Other", Email: "awe@TEST.cd", Role: "student", Password: goodPwd})
		assert.True(t, core.IsValidation(err), "got %v", err)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "Other", Email: "other@test.cd", Role: "janitor", Password: goodPwd})
		assert.True(t, core.IsValidation(err), "got %v", err)
	})

	t.Run("authenticate", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, " Awe@Test.cd", goodPwd)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, got.ID)

		_, err = svc.Authenticate(ctx, "awe@test.cd", "wrong")
		assert.Equal(t, user.ErrInvalidCredentials, err)
		_, err = svc.Authenticate(ctx, "nobody@test.cd", goodPwd)
		assert.Equal(t, user.ErrInvalidCredentials, err)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := svc.Update(ctx, usr.ID, user.UpdateUser{Name: "Awe B.", IsActive: core.BoolPtr(false), Password: "N3w-Passphrase"})
		require.NoError(t, err)
		assert.Equal(t, "Awe B.", updated.Name)
		assert.Equal(t, "awe@test.cd", updated.Email)
		assert.False(t, updated.IsActive)
		assert.NoError(t, updated.CheckPassword("N3w-Passphrase"))
		assert.Equal(t, user.RoleTeacher, updated.Role)

		_, err = svc.Authenticate(ctx, "awe@test.cd", "N3w-Passphrase")
		assert.Equal(t, user.ErrInvalidCredentials, err, "inactive users cannot authenticate")

		_, err = svc.Update(ctx, "ghost", user.UpdateUser{Name: "Ghost"})
		assert.True(t, core.IsNotFound(err), "got %v", err)
	})

	t.Run("set last login", func(t *testing.T) {
		require.NoError(t, svc.SetLastLogin(ctx, usr.ID))
		got, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.False(t, got.LastLogin.IsZero())
	})

	t.Run("query", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "Zed", Email: "zed@test.cd", Role: "student", Password: goodPwd})
		require.NoError(t, err)

		students, err := svc.Query(ctx, user.Filter{Role: " STUDENT"})
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, "Zed", students[0].Name)

		found, err := svc.Query(ctx, user.Filter{Search: "awe"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, usr.ID, found[0].ID)
	})
}

func TestService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	attendanceRepo := inmemdb.NewAttendanceRepository(db)
	gradeRepo := inmemdb.NewGradeRepository(db)
	svc := user.NewService(usrRepo)

	teacher := testutil.CreateUser(t, usrRepo, "Teach", "teach@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	subject := testutil.CreateSubject(t, schoolRepo, "Mathematics", "MAT")
	class := testutil.CreateClass(t, schoolRepo, "6A", "6")
	testutil.Enroll(t, schoolRepo, student.ID, class.ID)
	testutil.Assign(t, schoolRepo, teacher.ID, subject.ID, class.ID)
	_, err := attendanceRepo.CreatePresences(ctx, attendance.Presence{
		StudentID: student.ID, SubjectID: subject.ID, ClassID: class.ID, LessonDate: "2024-01-30", Present: true,
	})
	require.NoError(t, err)
	_, err = gradeRepo.CreateGrades(ctx, grade.Grade{StudentID: student.ID, SubjectID: subject.ID, Value: 7})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, student.ID, teacher.ID)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	enrollments, err := schoolRepo.QueryEnrollments(ctx, school.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, enrollments)
	assignments, err := schoolRepo.QueryAssignments(ctx, school.AssignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, assignments)
	presences, err := attendanceRepo.QueryPresences(ctx, attendance.PresenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, presences)
	grades, err := gradeRepo.QueryGrades(ctx, grade.Filter{})
	require.NoError(t, err)
	assert.Empty(t, grades)

	_, err = svc.Delete(ctx, student.ID)
	assert.True(t, core.IsNotFound(err), "got %v", err)
}
