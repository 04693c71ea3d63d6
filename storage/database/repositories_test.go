package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
	testutil "github.com/trezcool/shule/tests"
)

// engines returns a fresh set of repositories per storage engine.
func engines(t *testing.T) map[string]func(t *testing.T) *database.Repositories {
	return map[string]func(t *testing.T) *database.Repositories{
		core.EngineMemory: func(t *testing.T) *database.Repositories {
			return database.NewMemoryRepositories()
		},
		core.EngineSQLite: func(t *testing.T) *database.Repositories {
			db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "shule.db"))
			require.NoError(t, err)
			require.NoError(t, database.Migrate(db.DB, core.EngineSQLite))
			repos := database.NewSQLRepositories(db)
			t.Cleanup(func() { _ = repos.Close() })
			return repos
		},
	}
}

func TestRepositories(t *testing.T) {
	for engine, open := range engines(t) {
		t.Run(engine, func(t *testing.T) {
			t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
			t.Run("school", func(t *testing.T) { testSchool(t, open(t)) })
			t.Run("attendance", func(t *testing.T) { testAttendance(t, open(t)) })
			t.Run("issued token", func(t *testing.T) { testIssuedToken(t, open(t)) })
			t.Run("grades", func(t *testing.T) { testGrades(t, open(t)) })
			t.Run("cascades", func(t *testing.T) { testCascades(t, open(t)) })
		})
	}
}

func testUsers(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()
	createdAt := time.Date(2024, 1, 30, 8, 0, 0, 123000000, time.UTC)

	awe := testutil.CreateUser(t, repos.Users, "Awe", "awe@test.cd", user.RoleTeacher, "Pwd-0f-Awe", true, createdAt)
	testutil.CreateUser(t, repos.Users, "Zed", "zed@test.cd", user.RoleStudent, "", false)

	_, err := repos.Users.CreateUsers(ctx, user.User{Name: "Dup", Email: "awe@test.cd", Role: user.RoleStudent})
	assert.True(t, core.IsValidation(err), "duplicate email: got %v", err)

	got, err := repos.Users.QueryUsers(ctx, user.Filter{Email: "awe@test.cd"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, awe.ID, got[0].ID)
	assert.Equal(t, createdAt, got[0].CreatedAt)
	assert.True(t, got[0].LastLogin.IsZero())
	assert.NoError(t, got[0].CheckPassword("Pwd-0f-Awe"))

	tests := []struct {
		name   string
		filter user.Filter
		want   []string
	}{
		{name: "all", want: []string{"Awe", "Zed"}},
		{name: "role", filter: user.Filter{Role: user.RoleStudent}, want: []string{"Zed"}},
		{name: "active", filter: user.Filter{IsActive: core.BoolPtr(true)}, want: []string{"Awe"}},
		{name: "search name", filter: user.Filter{Search: "ze"}, want: []string{"Zed"}},
		{name: "search email", filter: user.Filter{Search: "awe@"}, want: []string{"Awe"}},
		{name: "ids", filter: user.Filter{IDs: []string{awe.ID, "ghost"}}, want: []string{"Awe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := repos.Users.QueryUsers(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(users))
			for _, usr := range users {
				names = append(names, usr.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := repos.Users.UpdateUsers(ctx, user.Patch{
		Name:      core.StringPtr("Awe B."),
		LastLogin: &now,
		UpdatedAt: now,
	}, user.Filter{IDs: []string{awe.ID}})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Awe B.", updated[0].Name)
	assert.Equal(t, "awe@test.cd", updated[0].Email)
	assert.Equal(t, now, updated[0].LastLogin)

	_, err = repos.Users.UpdateUsers(ctx, user.Patch{Email: core.StringPtr("zed@test.cd")}, user.Filter{IDs: []string{awe.ID}})
	assert.True(t, core.IsValidation(err), "email collision: got %v", err)

	none, err := repos.Users.UpdateUsers(ctx, user.Patch{Name: core.StringPtr("Ghost")}, user.Filter{IDs: []string{"ghost"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSchool(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()

	mat := testutil.CreateSubject(t, repos.School, "Mathematics", "MAT")
	phy := testutil.CreateSubject(t, repos.School, "Physics", "PHY")
	_, err := repos.School.CreateSubjects(ctx, school.Subject{Name: "Maths", Code: "MAT"})
	assert.True(t, core.IsValidation(err), "duplicate code: got %v", err)
	_, err = repos.School.UpdateSubjects(ctx, school.SubjectPatch{Code: core.StringPtr("MAT")}, school.SubjectFilter{IDs: []string{phy.ID}})
	assert.True(t, core.IsValidation(err), "code collision: got %v", err)

	subjects, err := repos.School.UpdateSubjects(ctx, school.SubjectPatch{Description: core.StringPtr("numbers")}, school.SubjectFilter{Code: "mat"})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, mat.ID, subjects[0].ID)
	assert.Equal(t, "numbers", subjects[0].Description)

	class := testutil.CreateClass(t, repos.School, "6A", "6")
	teacher := testutil.CreateUser(t, repos.Users, "Teach", "teach@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, repos.Users, "Hero", "hero@test.cd", user.RoleStudent, "", true)

	testutil.Enroll(t, repos.School, student.ID, class.ID)
	_, err = repos.School.CreateEnrollments(ctx, school.Enrollment{StudentID: student.ID, ClassID: class.ID})
	assert.True(t, core.IsConflict(err), "duplicate enrollment: got %v", err)

	testutil.Assign(t, repos.School, teacher.ID, mat.ID, class.ID)
	testutil.Assign(t, repos.School, teacher.ID, phy.ID, class.ID)
	_, err = repos.School.CreateAssignments(ctx, school.Assignment{TeacherID: teacher.ID, SubjectID: mat.ID, ClassID: class.ID})
	assert.True(t, core.IsConflict(err), "duplicate assignment: got %v", err)

	// deleting a subject drops its assignments only
	deleted, err := repos.School.DeleteSubjects(ctx, school.SubjectFilter{IDs: []string{phy.ID}})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
	assignments, err := repos.School.QueryAssignments(ctx, school.AssignmentFilter{TeacherIDs: []string{teacher.ID}})
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, mat.ID, assignments[0].SubjectID)

	// deleting a class drops its roster
	_, err = repos.School.DeleteClasses(ctx, school.ClassFilter{IDs: []string{class.ID}})
	require.NoError(t, err)
	enrollments, err := repos.School.QueryEnrollments(ctx, school.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, enrollments)
	assignments, err = repos.School.QueryAssignments(ctx, school.AssignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func testAttendance(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	token := func(code, date string, expiresAt time.Time) attendance.Token {
		return attendance.Token{
			Code: code, SubjectID: "MAT", ClassID: "C1", LessonDate: date, TeacherID: "T1",
			CreatedAt: now, ExpiresAt: expiresAt, Active: true,
		}
	}
	created, err := repos.Attendance.CreateTokens(ctx,
		token("code1", "2024-01-29", now.Add(-time.Minute)),
		token("code2", "2024-01-30", now.Add(time.Hour)),
	)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEmpty(t, created[0].ID)

	_, err = repos.Attendance.CreateTokens(ctx, token("code1", "2024-01-31", now))
	assert.True(t, core.IsConflict(err), "duplicate code: got %v", err)

	live, err := repos.Attendance.QueryTokens(ctx, attendance.TokenFilter{Active: core.BoolPtr(true), ExpiresAfter: now})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "code2", live[0].Code)
	assert.Equal(t, now.Add(time.Hour), live[0].ExpiresAt)

	swept, err := repos.Attendance.UpdateTokens(ctx, attendance.TokenPatch{Active: core.BoolPtr(false)}, attendance.TokenFilter{ExpiresBefore: now})
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "code1", swept[0].Code)
	assert.False(t, swept[0].Active)

	p := attendance.Presence{
		StudentID: "S1", SubjectID: "MAT", ClassID: "C1", LessonDate: "2024-01-30",
		Present: true, TokenUsed: true, Notes: "on time", CreatedAt: now, UpdatedAt: now,
	}
	_, err = repos.Attendance.CreatePresences(ctx, p)
	require.NoError(t, err)
	_, err = repos.Attendance.CreatePresences(ctx, p)
	assert.True(t, core.IsConflict(err), "duplicate presence: got %v", err)

	p.StudentID = "S2"
	p.Present = false
	_, err = repos.Attendance.CreatePresences(ctx, p)
	require.NoError(t, err)

	absent, err := repos.Attendance.QueryPresences(ctx, attendance.PresenceFilter{Present: core.BoolPtr(false)})
	require.NoError(t, err)
	require.Len(t, absent, 1)
	assert.Equal(t, "S2", absent[0].StudentID)

	later := now.Add(time.Minute)
	updated, err := repos.Attendance.UpdatePresences(ctx, attendance.PresencePatch{
		Present:   core.BoolPtr(true),
		TokenUsed: core.BoolPtr(false),
		UpdatedAt: later,
	}, attendance.PresenceFilter{StudentIDs: []string{"S1"}, LessonDate: "2024-01-30"})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.True(t, updated[0].Present)
	assert.False(t, updated[0].TokenUsed)
	assert.Equal(t, "on time", updated[0].Notes)
	assert.Equal(t, later, updated[0].UpdatedAt)
	assert.Equal(t, now, updated[0].CreatedAt)
}

func testIssuedToken(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()
	issuedAt := time.Date(2024, 1, 30, 8, 0, 0, 123456789, time.UTC)
	attendance.NowFunc = func() time.Time { return issuedAt }
	t.Cleanup(func() { attendance.NowFunc = time.Now })

	rec := attendance.NewRecorder(repos.Attendance, nil)
	iss := attendance.NewIssuer(repos.Attendance, rec, nil, core.AttendanceConfig{TokenTTL: 30 * time.Minute, MaxTokenTTL: 4 * time.Hour})
	tok, err := iss.IssueToken(ctx, attendance.NewToken{
		TeacherID: "T1", SubjectID: "MAT", ClassID: "C1", LessonDate: "2024-01-30", TTLMinutes: 30,
	})
	require.NoError(t, err)
	wantExpiry := time.Date(2024, 1, 30, 8, 30, 0, 123000000, time.UTC)
	assert.Equal(t, wantExpiry, tok.ExpiresAt)

	stored, err := iss.GetToken(ctx, tok.Code)
	require.NoError(t, err)
	assert.Equal(t, tok.ExpiresAt, stored.ExpiresAt)
	assert.Equal(t, tok.CreatedAt, stored.CreatedAt)

	// redeemable up to the exact stored expiry
	attendance.NowFunc = func() time.Time { return wantExpiry }
	_, err = iss.RedeemToken(ctx, tok.Code, "S1")
	assert.NoError(t, err)
}

func testGrades(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()

	created, err := repos.Grades.CreateGrades(ctx,
		grade.Grade{StudentID: "S1", SubjectID: "MAT", Value: 8.5, Kind: "exam", CreatedAt: time.Now().UTC()},
		grade.Grade{StudentID: "S1", SubjectID: "MAT", Value: 9, Kind: "quiz", CreatedAt: time.Now().UTC()},
		grade.Grade{StudentID: "S2", SubjectID: "MAT", Value: 3.25, CreatedAt: time.Now().UTC()},
	)
	require.NoError(t, err)
	require.Len(t, created, 3)

	grades, err := repos.Grades.QueryGrades(ctx, grade.Filter{StudentIDs: []string{"S1"}, SubjectIDs: []string{"MAT"}})
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, 8.5, grades[0].Value)
	assert.Equal(t, 9.0, grades[1].Value)
	s := grade.Summarize(grades)
	require.NotNil(t, s.Average)
	assert.Equal(t, 8.75, *s.Average)

	quizzes, err := repos.Grades.QueryGrades(ctx, grade.Filter{Kind: "quiz"})
	require.NoError(t, err)
	assert.Len(t, quizzes, 1)

	deleted, err := repos.Grades.DeleteGrades(ctx, grade.Filter{IDs: []string{created[2].ID}})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, 3.25, deleted[0].Value)
}

func testCascades(t *testing.T, repos *database.Repositories) {
	ctx := context.Background()

	teacher := testutil.CreateUser(t, repos.Users, "Teach", "teach@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, repos.Users, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	subject := testutil.CreateSubject(t, repos.School, "Mathematics", "MAT")
	class := testutil.CreateClass(t, repos.School, "6A", "6")
	testutil.Enroll(t, repos.School, student.ID, class.ID)
	testutil.Assign(t, repos.School, teacher.ID, subject.ID, class.ID)

	now := time.Now().UTC()
	_, err := repos.Attendance.CreateTokens(ctx, attendance.Token{
		Code: "code1", SubjectID: subject.ID, ClassID: class.ID, LessonDate: "2024-01-30", TeacherID: teacher.ID,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour), Active: true,
	})
	require.NoError(t, err)
	_, err = repos.Attendance.CreatePresences(ctx, attendance.Presence{
		StudentID: student.ID, SubjectID: subject.ID, ClassID: class.ID, LessonDate: "2024-01-30", Present: true,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = repos.Grades.CreateGrades(ctx, grade.Grade{StudentID: student.ID, SubjectID: subject.ID, Value: 7, CreatedAt: now})
	require.NoError(t, err)

	deleted, err := repos.Users.DeleteUsers(ctx, user.Filter{IDs: []string{student.ID, teacher.ID}})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	enrollments, err := repos.School.QueryEnrollments(ctx, school.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, enrollments)
	assignments, err := repos.School.QueryAssignments(ctx, school.AssignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, assignments)
	presences, err := repos.Attendance.QueryPresences(ctx, attendance.PresenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, presences)
	grades, err := repos.Grades.QueryGrades(ctx, grade.Filter{})
	require.NoError(t, err)
	assert.Empty(t, grades)

	// tokens are kept for the record
	tokens, err := repos.Attendance.QueryTokens(ctx, attendance.TokenFilter{})
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}
