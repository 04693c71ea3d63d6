package report_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/report"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

func presence(student, date string, present bool) attendance.Presence {
	return attendance.Presence{StudentID: student, SubjectID: "MAT", ClassID: "C1", LessonDate: date, Present: present}
}

func dataset() report.Dataset {
	return report.Dataset{
		Students: []user.User{{ID: "S1", Name: "Ada"}, {ID: "S2", Name: "Bob"}},
		Subjects: []school.Subject{{ID: "MAT", Name: "Mathematics"}, {ID: "PHY", Name: "Physics"}},
		Classes:  []school.Class{{ID: "C1", Name: "6A"}},
		Enrollments: []school.Enrollment{
			{StudentID: "S1", ClassID: "C1"},
			{StudentID: "S2", ClassID: "C1"},
		},
		Assignments: []school.Assignment{
			{TeacherID: "T1", SubjectID: "MAT", ClassID: "C1"},
			{TeacherID: "T2", SubjectID: "PHY", ClassID: "C1"},
		},
		Presences: []attendance.Presence{
			presence("S1", "2024-01-29", true),
			presence("S1", "2024-01-30", true),
			presence("S1", "2024-01-31", true),
			presence("S1", "2024-02-01", false),
			presence("S2", "2024-01-29", true),
			presence("S2", "2024-01-30", false),
		},
		Grades: []grade.Grade{
			{StudentID: "S1", SubjectID: "MAT", Value: 8.5},
			{StudentID: "S1", SubjectID: "MAT", Value: 9},
			{StudentID: "S2", SubjectID: "MAT", Value: 9},
			{StudentID: "S2", SubjectID: "PHY", Value: 4},
		},
	}
}

func TestBuild(t *testing.T) {
	rows := report.Build(dataset(), report.Criteria{PassAverage: 7, PassFrequency: 75})
	require.Len(t, rows, 4)

	ada := rows[0]
	assert.Equal(t, "Ada", ada.StudentName)
	assert.Equal(t, "Mathematics", ada.SubjectName)
	assert.Equal(t, "6A", ada.ClassName)
	assert.Equal(t, 4, ada.TotalLessons)
	assert.Equal(t, 3, ada.Presences)
	assert.Equal(t, 75.0, ada.Frequency)
	require.NotNil(t, ada.Average)
	assert.Equal(t, 8.75, *ada.Average)
	assert.Equal(t, 2, ada.TotalGrades)
	assert.True(t, ada.Passed, "75% attendance and 8.75 average pass")

	adaPhysics := rows[1]
	assert.Equal(t, "Physics", adaPhysics.SubjectName)
	assert.Equal(t, 0, adaPhysics.TotalLessons)
	assert.Nil(t, adaPhysics.Average)
	assert.False(t, adaPhysics.Passed)

	bob := rows[2]
	assert.Equal(t, "Bob", bob.StudentName)
	assert.Equal(t, 1, bob.Presences)
	assert.Equal(t, 25.0, bob.Frequency)
	assert.False(t, bob.Passed, "good grades do not make up for a poor attendance")
}

func TestBuild_Criteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria report.Criteria
		wantRows int
	}{
		{name: "all", wantRows: 4},
		{name: "subject", criteria: report.Criteria{SubjectID: "PHY"}, wantRows: 2},
		{name: "teacher", criteria: report.Criteria{TeacherID: "T1"}, wantRows: 2},
		{name: "class", criteria: report.Criteria{ClassID: "C1"}, wantRows: 4},
		{name: "unknown class", criteria: report.Criteria{ClassID: "C9"}, wantRows: 0},
		{name: "unknown teacher", criteria: report.Criteria{TeacherID: "T9"}, wantRows: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, report.Build(dataset(), tt.criteria), tt.wantRows)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	rows := report.Build(dataset(), report.Criteria{PassAverage: 7, PassFrequency: 75})

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, rows))

	want := "Student,Subject,Class,Total Lessons,Presences,Frequency(%),Grade Average,Total Grades\n" +
		"Ada,Mathematics,6A,4,3,75,8.75,2\n" +
		"Ada,Physics,6A,0,0,0,N/A,0\n" +
		"Bob,Mathematics,6A,4,1,25,9,1\n" +
		"Bob,Physics,6A,0,0,0,4,1\n"
	assert.Equal(t, want, buf.String())
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	attendanceRepo := inmemdb.NewAttendanceRepository(db)
	gradeRepo := inmemdb.NewGradeRepository(db)
	svc := report.NewService(usrRepo, schoolRepo, attendanceRepo, gradeRepo, core.ReportConfig{PassAverage: 7, PassFrequency: 75})

	rows, err := svc.Generate(ctx, report.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	teacher := testutil.CreateUser(t, usrRepo, "Teach", "teach@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	subject := testutil.CreateSubject(t, schoolRepo, "Mathematics", "MAT")
	class := testutil.CreateClass(t, schoolRepo, "6A", "6")
	other := testutil.CreateClass(t, schoolRepo, "6B", "6")
	testutil.Enroll(t, schoolRepo, student.ID, class.ID)
	testutil.Assign(t, schoolRepo, teacher.ID, subject.ID, class.ID)
	testutil.Assign(t, schoolRepo, teacher.ID, subject.ID, other.ID)

	_, err = attendanceRepo.CreatePresences(ctx, attendance.Presence{
		StudentID: student.ID, SubjectID: subject.ID, ClassID: class.ID, LessonDate: "2024-01-30", Present: true,
	})
	require.NoError(t, err)
	_, err = gradeRepo.CreateGrades(ctx, grade.Grade{StudentID: student.ID, SubjectID: subject.ID, Value: 6})
	require.NoError(t, err)

	rows, err = svc.Generate(ctx, report.Filter{TeacherID: teacher.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Hero", rows[0].StudentName)
	assert.Equal(t, 100.0, rows[0].Frequency)
	assert.False(t, rows[0].Passed)

	rows, err = svc.Generate(ctx, report.Filter{ClassID: other.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
