package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attendly/internal/attendance"
	"attendly/internal/auth"
	"attendly/internal/credential"
	"attendly/internal/directory"
	"attendly/internal/httpmiddleware"
	"attendly/internal/notify"
	"attendly/internal/otp"
	"attendly/internal/timetable"
)

const (
	testKey    = "handler-test-key"
	testIssuer = "attendly-test"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return sixDigits.FindString(o.sent[len(o.sent)-1].Text)
}

type env struct {
	router *gin.Engine
	box    *outbox
	creds  *credential.Memory
	tokens map[string]string
}

func newEnv(t *testing.T, limit gin.HandlerFunc) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := directory.NewMemory()
	dir.AddClass(directory.Class{ID: "class-1", OwnerID: "admin-1", Name: "10-A"})
	dir.AddClass(directory.Class{ID: "class-9", OwnerID: "admin-2", Name: "12-C"})
	dir.AddTeacher(directory.Account{ID: "teacher-1", Name: "Ms. Rao", Email: "rao@example.com"})
	dir.AddStudent(directory.Account{ID: "student-1", Name: "Asha", Email: "asha@example.com", Phone: "9876543210"}, "class-1")
	dir.AddStudent(directory.Account{ID: "student-2", Name: "Zoe"}, "class-9")

	slots := timetable.NewService(timetable.NewMemory(), dir, zap.NewNop())
	records := attendance.NewMemory()
	ledger := attendance.NewService(records, slots, dir, nil, nil, zap.NewNop())
	reports := attendance.NewReporter(records, slots, dir, nil, zap.NewNop())

	box := &outbox{}
	creds := credential.NewMemory()
	creds.Add(directory.Student, "student-1", "old")
	codes := otp.NewService(otp.NewMemory(), dir, box, 10*time.Minute, zap.NewNop())
	resets := credential.NewResetter(dir, codes, creds, zap.NewNop())

	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	r := gin.New()
	New(slots, ledger, reports, resets, dir, zap.NewNop()).Register(r, auth.Bearer(testKey, testIssuer), limit)

	e := &env{router: r, box: box, creds: creds, tokens: make(map[string]string)}
	for id, role := range map[string]auth.Role{
		"admin-1":   auth.RoleAdmin,
		"admin-2":   auth.RoleAdmin,
		"teacher-1": auth.RoleTeacher,
		"student-1": auth.RoleStudent,
	} {
		e.tokens[id] = accessToken(t, id, role)
	}
	return e
}

func accessToken(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role:      role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, path, as string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[as])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func slotBody(subject, day, start, end string) gin.H {
	return gin.H{
		"classId":   "class-1",
		"subject":   subject,
		"teacherId": "teacher-1",
		"dayOfWeek": day,
		"startTime": start,
		"endTime":   end,
		"room":      "R-101",
	}
}

func (e *env) createSlot(t *testing.T, subject, day, start, end string) timetable.Slot {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/admin/timetable", "admin-1", slotBody(subject, day, start, end))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[timetable.Slot](t, rec)
}

func TestSlotLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	math := e.createSlot(t, "Mathematics", "MONDAY", "09:00", "10:00")
	assert.Equal(t, "Ms. Rao", math.TeacherName)
	assert.True(t, math.Active)

	rec := e.do(t, http.MethodPost, "/v1/admin/timetable", "admin-1", slotBody("Physics", "MONDAY", "09:30", "10:30"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Time slot overlaps with existing slot: Mathematics (09:00 - 10:00)", decode[gin.H](t, rec)["error"])

	e.createSlot(t, "Physics", "MONDAY", "10:00", "11:00")

	rec = e.do(t, http.MethodPut, "/v1/admin/timetable/"+math.ID, "admin-1", slotBody("Mathematics", "MONDAY", "08:00", "09:30"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "08:00", decode[gin.H](t, rec)["startTime"])

	rec = e.do(t, http.MethodPut, "/v1/admin/timetable/"+math.ID, "admin-2", slotBody("Mathematics", "MONDAY", "08:00", "09:30"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodDelete, "/v1/admin/timetable/"+math.ID, "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/admin/timetable/class/class-1", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]timetable.Slot](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/v1/admin/timetable/class/class-1?include_inactive=true", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]timetable.Slot](t, rec), 2)

	rec = e.do(t, http.MethodGet, "/v1/admin/timetable/class/class-1?day=tuesday", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/v1/admin/timetable/class/class-9", "admin-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/admin/timetable/class/no-such-class", "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Class not found with id: no-such-class", decode[map[string]string](t, rec)["error"])
}

func TestCreateSlotRejectsBadInput(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "missing subject", body: slotBody("", "MONDAY", "09:00", "10:00"), field: "subject"},
		{name: "unknown day", body: slotBody("Art", "FUNDAY", "09:00", "10:00"), field: "dayOfWeek"},
		{name: "end before start", body: slotBody("Art", "MONDAY", "10:00", "09:00")},
		{name: "bad clock", body: slotBody("Art", "MONDAY", "9am", "10:00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/v1/admin/timetable", "admin-1", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			if tt.field == "" {
				return
			}
			assert.Contains(t, rec.Body.String(), `"field":"`+tt.field+`"`)
		})
	}
}

func TestRoleGuards(t *testing.T) {
	e := newEnv(t, nil)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/teacher/timetable", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/v1/admin/timetable", "teacher-1", slotBody("Art", "MONDAY", "09:00", "10:00")).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/attendance/student/student-1", "student-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "student-1", nil).Code)
}

func TestTeacherTimetableByDate(t *testing.T) {
	e := newEnv(t, nil)
	e.createSlot(t, "Mathematics", "MONDAY", "09:00", "10:00")
	e.createSlot(t, "Physics", "TUESDAY", "09:00", "10:00")

	rec := e.do(t, http.MethodGet, "/v1/teacher/timetable", "teacher-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]timetable.Slot](t, rec), 2)

	rec = e.do(t, http.MethodGet, "/v1/teacher/timetable?date=2024-03-04", "teacher-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]timetable.Slot](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Mathematics", got[0].Subject)

	rec = e.do(t, http.MethodGet, "/v1/teacher/timetable?date=04-03-2024", "teacher-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/student/timetable?day=TUESDAY", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[[]timetable.Slot](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Physics", got[0].Subject)
}

func TestMarkAttendanceAndReport(t *testing.T) {
	e := newEnv(t, nil)
	math := e.createSlot(t, "Mathematics", "MONDAY", "09:00", "10:00")
	mark := func(status, date string) gin.H {
		return gin.H{"timetableSlotId": math.ID, "studentId": "student-1", "date": date, "status": status}
	}

	rec := e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1", mark("ABSENT", "2024-03-04"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[gin.H](t, rec)
	assert.Equal(t, "Mathematics", first["subject"])
	assert.Equal(t, "Asha", first["studentName"])
	assert.Equal(t, "Ms. Rao", first["markedByName"])

	rec = e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1", mark("PRESENT", "2024-03-04"))
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[gin.H](t, rec)
	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, "PRESENT", second["status"])

	rec = e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1", mark("NOT_MARKED", "2024-03-04"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1",
		gin.H{"timetableSlotId": math.ID, "studentId": "student-2", "date": "2024-03-04", "status": "PRESENT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Student does not belong to this class", decode[gin.H](t, rec)["error"])

	rec = e.do(t, http.MethodGet, "/v1/teacher/attendance/slot/"+math.ID+"?date=2024-03-04", "teacher-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]gin.H](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/v1/teacher/attendance/slot/"+math.ID, "teacher-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1", mark("ABSENT", "2024-03-11"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/student/attendance/report", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[gin.H](t, rec)
	assert.EqualValues(t, 2, report["totalClasses"])
	assert.EqualValues(t, 1, report["classesPresent"])
	assert.EqualValues(t, 50, report["overallPercentage"])

	rec = e.do(t, http.MethodGet, "/v1/attendance/student/student-1?from=2024-03-05&to=2024-03-31", "teacher-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]gin.H](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/v1/attendance/student/student-1?from=2024-03-31&to=2024-03-01", "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/attendance/student/ghost/report", "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTodayAttendance(t *testing.T) {
	e := newEnv(t, nil)
	math := e.createSlot(t, "Mathematics", "MONDAY", "09:00", "10:00")
	today := attendance.DateOf(time.Now().UTC()).String()

	rec := e.do(t, http.MethodPost, "/v1/teacher/attendance/mark", "teacher-1",
		gin.H{"timetableSlotId": math.ID, "studentId": "student-1", "date": today, "status": "LEAVE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/v1/student/attendance/today", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]gin.H](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "LEAVE", got[0]["status"])
}

func TestBulkMarkStopsAtFirstFailure(t *testing.T) {
	e := newEnv(t, nil)
	math := e.createSlot(t, "Mathematics", "MONDAY", "09:00", "10:00")

	rec := e.do(t, http.MethodPost, "/v1/teacher/attendance/mark/bulk", "teacher-1", gin.H{"records": []gin.H{
		{"timetableSlotId": math.ID, "studentId": "student-1", "date": "2024-03-04", "status": "PRESENT"},
		{"timetableSlotId": "missing", "studentId": "student-1", "date": "2024-03-04", "status": "PRESENT"},
		{"timetableSlotId": math.ID, "studentId": "student-1", "date": "2024-03-11", "status": "PRESENT"},
	}})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	body := decode[gin.H](t, rec)
	assert.EqualValues(t, 1, body["index"])
	assert.Len(t, body["saved"], 1)

	rec = e.do(t, http.MethodGet, "/v1/student/attendance", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]gin.H](t, rec), 1)

	rec = e.do(t, http.MethodPost, "/v1/teacher/attendance/mark/bulk", "teacher-1", gin.H{"records": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/v1/password/forgot", "", gin.H{"email": "asha@example.com", "userType": "STUDENT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[gin.H](t, rec)
	assert.Equal(t, "as****@example.com", body["email"])
	assert.Equal(t, "******3210", body["phone"])

	rec = e.do(t, http.MethodPost, "/v1/password/verify-otp", "", gin.H{"otp": "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired OTP", decode[gin.H](t, rec)["error"])

	code := e.box.lastCode(t)
	rec = e.do(t, http.MethodPost, "/v1/password/verify-otp", "", gin.H{"otp": code})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/password/reset", "", gin.H{"otp": code, "newPassword": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/password/reset", "", gin.H{"otp": code, "newPassword": "s3cret!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hash, _ := e.creds.Hash(directory.Student, "student-1")
	assert.NotEqual(t, "old", hash)

	rec = e.do(t, http.MethodPost, "/v1/password/reset", "", gin.H{"otp": code, "newPassword": "s3cret!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/password/forgot", "", gin.H{"email": "nobody@example.com", "userType": "TEACHER"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/password/forgot", "", gin.H{"email": "not-an-email", "userType": "TEACHER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordRoutesAreRateLimited(t *testing.T) {
	limiter := httpmiddleware.NewTokenBucket(2, 2)
	e := newEnv(t, limiter.Middleware(httpmiddleware.ByRoute))

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodPost, "/v1/password/verify-otp", "", gin.H{"otp": "000000"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/v1/password/verify-otp", "", gin.H{"otp": "000000"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/password/reset", "", gin.H{"otp": "000000", "newPassword": "s3cret!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
