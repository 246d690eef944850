package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/httpmiddleware"
	"classattend/internal/queue"
	"classattend/internal/store/memory"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "classattend-test"
)

type fakeUploader struct{ name string }

func (f *fakeUploader) UploadEvidence(_ context.Context, filename string, _ []byte) (*cloudinary.UploadResult, error) {
	f.name = filename
	return &cloudinary.UploadResult{PublicID: "ev/1", SecureURL: "https://cdn.example/ev/1"}, nil
}

type testEnv struct {
	t        *testing.T
	router   *gin.Engine
	att      *attendance.Service
	q        *queue.InMemory
	classID  string
	lecturer string
	other    string
	student  string
	admin    string
}

func newTestEnv(t *testing.T, uploader EvidenceUploader, opts ...func(*Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	st := memory.New()
	att := attendance.NewService(st, zerolog.Nop())
	authSvc := auth.NewService(st, auth.Config{
		Issuer: testIssuer, SigningKey: testKey, AccessTTL: time.Minute, RefreshTTL: time.Hour,
	}, zerolog.Nop())

	create := func(username string, role attendance.Role) string {
		u, err := authSvc.CreateUser(ctx, auth.NewUser{Username: username, FullName: strings.ToUpper(username), Role: role, Password: "password1"})
		require.NoError(t, err)
		return u.ID
	}
	env := &testEnv{t: t, att: att, q: queue.NewInMemory(16)}
	env.lecturer = create("lect", attendance.RoleLecturer)
	env.other = create("lect2", attendance.RoleLecturer)
	env.student = create("stud", attendance.RoleStudent)
	env.admin = create("admin", attendance.RoleAdmin)

	class, err := att.CreateClass(ctx, "CS101", "Intro", env.lecturer)
	require.NoError(t, err)
	env.classID = class.ID
	require.NoError(t, att.Enroll(ctx, class.ID, env.student))

	deps := Deps{
		Attendance: att,
		Auth:       authSvc,
		Queue:      env.q,
		SigningKey: testKey,
		Issuer:     testIssuer,
		Logger:     zerolog.Nop(),
	}
	if uploader != nil {
		deps.Evidence = uploader
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) token(userID string, role attendance.Role) string {
	e.t.Helper()
	pair, err := auth.Issue(userID, role, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(e.t, err)
	return pair.AccessToken
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) openSession(date string) attendance.Session {
	e.t.Helper()
	w := e.do(http.MethodPost, "/v1/sessions", e.token(e.lecturer, attendance.RoleLecturer), gin.H{
		"class_id": e.classID, "date": date, "start_time": "09:00", "duration_minutes": 60,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[attendance.Session](e.t, w)
}

func (e *testEnv) drain() []queue.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, _ := e.q.Consume(ctx)
	var msgs []queue.Message
	for m := range out {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthGuards(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/v1/sessions", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/v1/sessions", "garbage", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/v1/sessions", env.token(env.student, attendance.RoleStudent), gin.H{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/v1/records", env.token(env.lecturer, attendance.RoleLecturer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	refresh, err := auth.Issue(env.lecturer, attendance.RoleLecturer, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	w = env.do(http.MethodGet, "/v1/classes", refresh.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "stud", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[auth.LoginResult](t, w)
	assert.Equal(t, env.student, res.User.ID)

	w = env.do(http.MethodGet, "/v1/me/warnings", res.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "stud", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "stud"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionAndCheckInFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	lect := env.token(env.lecturer, attendance.RoleLecturer)
	stud := env.token(env.student, attendance.RoleStudent)

	w := env.do(http.MethodPost, "/v1/sessions", lect, gin.H{
		"class_id": env.classID, "date": "2026-02-30", "start_time": "09:00", "duration_minutes": 60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sess := env.openSession("2026-03-02")

	w = env.do(http.MethodPost, "/v1/checkins", stud, gin.H{"session_id": sess.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[attendance.Record](t, w)
	assert.Equal(t, attendance.StatusPresent, rec.Status)

	w = env.do(http.MethodPost, "/v1/checkins", stud, gin.H{"session_id": sess.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	msgs := env.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, queue.TypeWarningsRecompute, msgs[0].Type)
	assert.Equal(t, env.classID, string(msgs[0].Body))

	w = env.do(http.MethodGet, "/v1/sessions/"+sess.ID+"/roster", env.token(env.other, attendance.RoleLecturer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/v1/sessions/"+sess.ID+"/roster", lect, nil)
	require.Equal(t, http.StatusOK, w.Code)
	roster := decode[struct {
		Roster []attendance.RosterEntry `json:"roster"`
	}](t, w)
	require.Len(t, roster.Roster, 1)
	assert.Equal(t, attendance.StatusPresent, roster.Roster[0].Status)

	w = env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/close", lect, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPut, "/v1/sessions/"+sess.ID+"/records/"+env.student, lect, gin.H{"status": "Late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPut, "/v1/sessions/"+sess.ID+"/records/"+env.student, env.token(env.admin, attendance.RoleAdmin), gin.H{"status": "Late", "note": "fixed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, attendance.StatusLate, decode[attendance.Record](t, w).Status)

	w = env.do(http.MethodPut, "/v1/sessions/"+sess.ID+"/records/"+env.student, env.token(env.admin, attendance.RoleAdmin), gin.H{"status": "Sleeping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	lect := env.token(env.lecturer, attendance.RoleLecturer)
	stud := env.token(env.student, attendance.RoleStudent)
	sess := env.openSession("2026-03-02")

	w := env.do(http.MethodPost, "/v1/requests", stud, gin.H{"session_id": sess.ID, "type": "Absent", "reason": "flu"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[attendance.Request](t, w)

	w = env.do(http.MethodPost, "/v1/requests", stud, gin.H{"session_id": sess.ID, "type": "Absent", "reason": "flu"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/v1/requests", lect, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Requests []attendance.Request `json:"requests"`
	}](t, w)
	require.Len(t, list.Requests, 1)

	w = env.do(http.MethodPost, "/v1/requests/"+req.ID+"/approve", env.token(env.other, attendance.RoleLecturer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/v1/requests/"+req.ID+"/approve", lect, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, attendance.RequestApproved, decode[attendance.Request](t, w).Status)

	w = env.do(http.MethodPost, "/v1/requests/"+req.ID+"/reject", lect, gin.H{"comment": "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/v1/me/requests?status=APPROVED", stud, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[struct {
		Requests []attendance.Request `json:"requests"`
	}](t, w)
	assert.Len(t, mine.Requests, 1)

	w = env.do(http.MethodGet, "/v1/me/requests?status=DONE", stud, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportsAndWarnings(t *testing.T) {
	env := newTestEnv(t, nil)
	lect := env.token(env.lecturer, attendance.RoleLecturer)
	for _, d := range []string{"2026-03-02", "2026-03-09", "2026-03-16"} {
		env.openSession(d)
	}

	w := env.do(http.MethodGet, "/v1/classes/"+env.classID+"/summary", lect, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[struct {
		Students []attendance.StudentSummary `json:"students"`
	}](t, w)
	require.Len(t, sum.Students, 1)
	assert.Equal(t, 3, sum.Students[0].Absent)

	w = env.do(http.MethodGet, "/v1/classes/"+env.classID+"/report.csv", lect, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 4)

	w = env.do(http.MethodGet, "/v1/classes/"+env.classID+"/report.csv?kind=pie", lect, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/v1/classes/"+env.classID+"/summary?from=2026-03-10&to=2026-03-01", lect, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/v1/classes/"+env.classID+"/warnings/generate", lect, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["created"])

	stud := env.token(env.student, attendance.RoleStudent)
	w = env.do(http.MethodGet, "/v1/me/warnings?unseen=true", stud, nil)
	require.Equal(t, http.StatusOK, w.Code)
	warnings := decode[struct {
		Warnings []attendance.Warning `json:"warnings"`
	}](t, w)
	require.Len(t, warnings.Warnings, 1)

	w = env.do(http.MethodPost, "/v1/me/warnings/"+warnings.Warnings[0].ID+"/seen", stud, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/v1/classes/missing/summary", env.token(env.admin, attendance.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.token(env.admin, attendance.RoleAdmin)
	sess := env.openSession("2026-03-02")

	w := env.do(http.MethodPost, "/v1/users", admin, gin.H{"username": "newbie", "role": "STUDENT", "password": "password1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	newbie := decode[attendance.User](t, w)
	assert.NotContains(t, w.Body.String(), "password")

	w = env.do(http.MethodPost, "/v1/classes/"+env.classID+"/enrollments", admin, gin.H{"student_id": newbie.ID})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/mark-all-present", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["updated"])

	w = env.do(http.MethodGet, "/v1/records?class_id="+env.classID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[struct {
		Records []attendance.DetailRow `json:"records"`
	}](t, w)
	assert.Len(t, records.Records, 2)

	w = env.do(http.MethodDelete, "/v1/sessions/"+sess.ID+"/records/"+newbie.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/v1/sessions/"+sess.ID+"/records/"+newbie.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/v1/classes/"+env.classID+"/enrollments/"+newbie.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEvidenceUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	stud := env.token(env.student, attendance.RoleStudent)
	w := env.do(http.MethodPost, "/v1/evidence", stud, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	up := &fakeUploader{}
	env = newTestEnv(t, up)
	stud = env.token(env.student, attendance.RoleStudent)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "note.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+stud)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "note.pdf", up.name)
	assert.Equal(t, "https://cdn.example/ev/1", decode[map[string]any](t, rec)["evidence_path"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(attendance.ErrValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(attendance.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(attendance.ErrState))
	assert.Equal(t, http.StatusConflict, statusFor(attendance.ErrConflict))
	assert.Equal(t, http.StatusForbidden, statusFor(attendance.ErrAuthorization))
	assert.Equal(t, http.StatusLocked, statusFor(auth.ErrLocked))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestSubjectOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key := subjectOrIP(testKey, testIssuer)
	pair, err := auth.Issue("u-7", attendance.RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"valid token", "Bearer " + pair.AccessToken, "user:u-7"},
		{"lowercase scheme", "bearer " + pair.AccessToken, "user:u-7"},
		{"bad token", "Bearer nope", "ip:192.0.2.1"},
		{"no header", "", "ip:192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/classes", nil)
			c.Request.RemoteAddr = "192.0.2.1:4000"
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.want, key(c))
		})
	}
}

func TestRateLimitChargesPerUser(t *testing.T) {
	env := newTestEnv(t, nil, func(d *Deps) {
		d.Limiter = httpmiddleware.NewSimpleTokenBucket(1, 1)
	})
	stud := env.token(env.student, attendance.RoleStudent)

	w := env.do(http.MethodGet, "/v1/me/warnings", stud, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/v1/me/warnings", stud, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = env.do(http.MethodGet, "/v1/classes", env.token(env.lecturer, attendance.RoleLecturer), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
