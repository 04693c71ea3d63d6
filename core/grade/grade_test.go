package grade_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	testutil "github.com/trezcool/shule/tests"
)

func TestRecorder_RecordGrade(t *testing.T) {
	ctx := context.Background()
	rec := grade.NewRecorder(inmemdb.NewGradeRepository(inmemdb.Open()))

	tests := []struct {
		name      string
		value     float64
		wantErr   bool
		wantValue float64
	}{
		{name: "below range", value: -0.1, wantErr: true},
		{name: "above range", value: 10.1, wantErr: true},
		{name: "lower bound", value: 0, wantValue: 0},
		{name: "upper bound", value: 10, wantValue: 10},
		{name: "rounded", value: 7.456, wantValue: 7.46},
		{name: "just above upper bound", value: 10.001, wantErr: true},
		{name: "not a number", value: math.NaN(), wantErr: true},
		{name: "positive infinity", value: math.Inf(1), wantErr: true},
		{name: "negative infinity", value: math.Inf(-1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := rec.RecordGrade(ctx, grade.NewGrade{StudentID: "S9", SubjectID: "MAT", Value: tt.value, Kind: " Exam "})
			if tt.wantErr {
				assert.True(t, core.IsRange(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, g.Value)
			assert.Equal(t, "exam", g.Kind)
		})
	}

	_, err := rec.RecordGrade(ctx, grade.NewGrade{SubjectID: "MAT", Value: 5})
	assert.True(t, core.IsValidation(err), "got %v", err)
}

func TestRecorder_Summary(t *testing.T) {
	ctx := context.Background()
	rec := grade.NewRecorder(inmemdb.NewGradeRepository(inmemdb.Open()))

	empty, err := rec.Summary(ctx, "S1", "MAT")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Nil(t, empty.Average)

	for _, v := range []float64{8.5, 9.0} {
		_, err := rec.RecordGrade(ctx, grade.NewGrade{StudentID: "S1", SubjectID: "MAT", Value: v})
		require.NoError(t, err)
	}
	_, err = rec.RecordGrade(ctx, grade.NewGrade{StudentID: "S1", SubjectID: "PHY", Value: 2})
	require.NoError(t, err)

	s, err := rec.Summary(ctx, "S1", "MAT")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count)
	require.NotNil(t, s.Average)
	assert.Equal(t, 8.75, *s.Average)
	assert.Equal(t, "S1", s.StudentID)
	assert.Equal(t, "MAT", s.SubjectID)
}

func TestRecorder_DeleteGrades(t *testing.T) {
	ctx := context.Background()
	rec := grade.NewRecorder(inmemdb.NewGradeRepository(inmemdb.Open()))

	g, err := rec.RecordGrade(ctx, grade.NewGrade{StudentID: "S1", SubjectID: "MAT", Value: 3})
	require.NoError(t, err)

	deleted, err := rec.DeleteGrades(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	_, err = rec.DeleteGrades(ctx, g.ID)
	assert.True(t, core.IsNotFound(err), "got %v", err)

	grades, err := rec.QueryGrades(ctx, grade.Filter{StudentIDs: []string{"S1"}})
	require.NoError(t, err)
	assert.Empty(t, grades)
}

func TestRecorder_Notifications(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	usrSvc := user.NewService(usrRepo)
	mailer := emailsvc.NewConsoleServiceMock(conf, logsvc.NewDiscardLogger(conf))

	rec := grade.NewRecorder(inmemdb.NewGradeRepository(db)).
		WithNotifications(usrSvc, school.NewService(schoolRepo, usrSvc), mailer, logsvc.NewDiscardLogger(conf))

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true)
	subject := testutil.CreateSubject(t, schoolRepo, "Mathematics", "MAT")

	_, err := rec.RecordGrade(ctx, grade.NewGrade{StudentID: student.ID, SubjectID: subject.ID, Value: 8.5, Kind: "exam", Notes: "well done"})
	require.NoError(t, err)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hero@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "New grade in Mathematics", sent[0].Subject)
	assert.True(t, strings.Contains(sent[0].TextContent, "Mathematics: 8.50 (exam)"), sent[0].TextContent)
	assert.Contains(t, sent[0].TextContent, "Notes: well done")
	assert.NotEmpty(t, sent[0].HTMLContent)

	// unknown students are recorded but not notified
	mailer.Reset()
	_, err = rec.RecordGrade(ctx, grade.NewGrade{StudentID: "ghost", SubjectID: subject.ID, Value: 1})
	require.NoError(t, err)
	assert.Empty(t, mailer.Sent())
}
