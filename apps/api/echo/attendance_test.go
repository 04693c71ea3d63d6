package echoapi_test

import (
	"bytes"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

type lesson struct {
	teacher, otherTeacher user.User
	student, outsider     user.User
	subject               school.Subject
	class                 school.Class
}

func setupLesson(t *testing.T, app *testApp) lesson {
	l := lesson{
		teacher:      testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher@test.cd", user.RoleTeacher, "", true),
		otherTeacher: testutil.CreateUser(t, app.usrRepo, "Other Teacher", "other@test.cd", user.RoleTeacher, "", true),
		student:      testutil.CreateUser(t, app.usrRepo, "Hero", "hero@test.cd", user.RoleStudent, "", true),
		outsider:     testutil.CreateUser(t, app.usrRepo, "Outsider", "outsider@test.cd", user.RoleStudent, "", true),
		subject:      testutil.CreateSubject(t, app.schoolRepo, "Mathematics", "MATH"),
		class:        testutil.CreateClass(t, app.schoolRepo, "6A", "6"),
	}
	testutil.Enroll(t, app.schoolRepo, l.student.ID, l.class.ID)
	testutil.Assign(t, app.schoolRepo, l.teacher.ID, l.subject.ID, l.class.ID)
	testutil.Assign(t, app.schoolRepo, l.otherTeacher.ID, l.subject.ID, l.class.ID)
	return l
}

func (l lesson) newToken(t *testing.T, ttl int) []byte {
	return marshallObj(t, attendance.NewToken{SubjectID: l.subject.ID, ClassID: l.class.ID, LessonDate: "2024-03-11", TTLMinutes: ttl})
}

func Test_attendanceApi_tokenFlow(t *testing.T) {
	app := setup(t)
	l := setupLesson(t, app)
	teacherToken := app.getToken(t, l.teacher)
	studentToken := app.getToken(t, l.student)

	// issue
	rec := app.do(http.MethodPost, "/v1/attendance/tokens", studentToken, l.newToken(t, 0))
	assert.Equal(t, http.StatusForbidden, rec.Code, "students cannot issue tokens")

	rec = app.do(http.MethodPost, "/v1/attendance/tokens", teacherToken, l.newToken(t, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued echoapi.TokenResponse
	unmarshall(t, rec, &issued)
	assert.True(t, issued.Active)
	assert.Equal(t, l.teacher.ID, issued.TeacherID)
	assert.Equal(t, 30*time.Minute, issued.ExpiresAt.Sub(issued.CreatedAt))
	assert.Contains(t, issued.RedeemURL, "/attendance/redeem?code="+issued.Code)

	rec = app.do(http.MethodPost, "/v1/attendance/tokens", app.getToken(t, l.otherTeacher), l.newToken(t, 0))
	assert.Equal(t, http.StatusConflict, rec.Code, "one live token per lesson")

	// QR code
	rec = app.do(http.MethodGet, "/v1/attendance/tokens/"+issued.Code+"/qr.png", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	rec = app.do(http.MethodGet, "/v1/attendance/tokens/"+issued.Code+"/qr.png", app.getToken(t, l.otherTeacher))
	assert.Equal(t, http.StatusNotFound, rec.Code, "the QR code of another teacher's token is hidden")

	// redeem
	redeem := func(token, code string) *httpTestResult {
		rec := app.do(http.MethodPost, "/v1/attendance/redeem", token, marshallObj(t, attendance.Redemption{Code: code}))
		return &httpTestResult{code: rec.Code, body: rec.Body.Bytes()}
	}

	res := redeem(studentToken, "nope")
	assert.Equal(t, http.StatusNotFound, res.code)

	res = redeem(app.getToken(t, l.outsider), issued.Code)
	assert.Equal(t, http.StatusBadRequest, res.code, "students outside the class cannot redeem")

	res = redeem(teacherToken, issued.Code)
	assert.Equal(t, http.StatusForbidden, res.code)

	for i := 0; i < 2; i++ { // redeeming twice keeps a single record
		res = redeem(studentToken, issued.Code)
		require.Equal(t, http.StatusOK, res.code, string(res.body))
	}

	rec = app.do(http.MethodGet, "/v1/attendance/presences", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var presences []attendance.Presence
	unmarshall(t, rec, &presences)
	require.Len(t, presences, 1)
	assert.True(t, presences[0].Present)
	assert.True(t, presences[0].TokenUsed)
	assert.Equal(t, "2024-03-11", presences[0].LessonDate)

	// close
	rec = app.do(http.MethodPost, "/v1/attendance/tokens/"+issued.Code+"/close", app.getToken(t, l.otherTeacher))
	assert.Equal(t, http.StatusNotFound, rec.Code, "only the issuing teacher closes a token")

	rec = app.do(http.MethodPost, "/v1/attendance/tokens/"+issued.Code+"/close", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res = redeem(studentToken, issued.Code)
	assert.Equal(t, http.StatusGone, res.code)

	// a closed token frees the lesson
	rec = app.do(http.MethodPost, "/v1/attendance/tokens", app.getToken(t, l.otherTeacher), l.newToken(t, 5))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/v1/attendance/tokens", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens []attendance.Token
	unmarshall(t, rec, &tokens)
	require.Len(t, tokens, 1, "teachers only see their tokens")
	assert.False(t, tokens[0].Active)
}

func Test_attendanceApi_expiredToken(t *testing.T) {
	app := setup(t)
	l := setupLesson(t, app)

	now := time.Now().UTC()
	attendance.NowFunc = func() time.Time { return now }
	defer func() { attendance.NowFunc = time.Now }()

	rec := app.do(http.MethodPost, "/v1/attendance/tokens", app.getToken(t, l.teacher), l.newToken(t, 10))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued echoapi.TokenResponse
	unmarshall(t, rec, &issued)

	attendance.NowFunc = func() time.Time { return now.Add(10*time.Minute + time.Second) }
	rec = app.do(http.MethodPost, "/v1/attendance/redeem", app.getToken(t, l.student), marshallObj(t, attendance.Redemption{Code: issued.Code}))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.JSONEq(t, `{"error": "attendance token has expired"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/v1/attendance/tokens", app.getToken(t, l.teacher), l.newToken(t, 10))
	assert.Equal(t, http.StatusCreated, rec.Code, "an expired token frees the lesson")
}

func Test_attendanceApi_rollCall(t *testing.T) {
	app := setup(t)
	l := setupLesson(t, app)
	teacherToken := app.getToken(t, l.teacher)

	rollCall := func(entries ...attendance.RollCallEntry) []byte {
		return marshallObj(t, attendance.RollCall{
			ClassID:    l.class.ID,
			SubjectID:  l.subject.ID,
			LessonDate: "2024-03-11",
			Entries:    entries,
		})
	}

	tests := []httpTest{
		{name: "students cannot call the roll", token: app.getToken(t, l.student), body: rollCall(attendance.RollCallEntry{StudentID: l.student.ID}), wantCode: http.StatusForbidden},
		{name: "no entries", token: teacherToken, body: rollCall(), wantCode: http.StatusBadRequest},
		{
			name: "all recorded", token: teacherToken, wantCode: http.StatusOK,
			body: rollCall(attendance.RollCallEntry{StudentID: l.student.ID, Present: false, Notes: "sick"}),
		},
		{
			name: "partial failure", token: teacherToken, wantCode: http.StatusMultiStatus,
			body: rollCall(
				attendance.RollCallEntry{StudentID: l.student.ID, Present: true},
				attendance.RollCallEntry{StudentID: l.outsider.ID, Present: true},
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/v1/attendance/roll-call", tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("partial failure reports the failed students", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/attendance/roll-call", teacherToken, rollCall(
			attendance.RollCallEntry{StudentID: l.outsider.ID, Present: true},
			attendance.RollCallEntry{StudentID: l.student.ID, Present: true},
		))
		require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())

		var resp echoapi.RollCallResponse
		unmarshall(t, rec, &resp)
		require.Len(t, resp.Recorded, 1)
		assert.Equal(t, l.student.ID, resp.Recorded[0].StudentID)
		assert.Equal(t, "sick", resp.Recorded[0].Notes, "notes are kept when not given")
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, l.outsider.ID, resp.Failed[0].StudentID)
	})

	t.Run("unassigned teacher", func(t *testing.T) {
		stranger := testutil.CreateUser(t, app.usrRepo, "Stranger", "stranger@test.cd", user.RoleTeacher, "", true)
		rec := app.do(http.MethodPost, "/v1/attendance/roll-call", app.getToken(t, stranger), rollCall(attendance.RollCallEntry{StudentID: l.student.ID}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type httpTestResult struct {
	code int
	body []byte
}
