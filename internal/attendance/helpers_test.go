package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/store/memory"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	svc      *attendance.Service
	now      time.Time
	lecturer string
	other    string
	admin    string
	classID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.New(),
		now:   baseTime,
	}
	f.svc = attendance.NewService(f.store, zerolog.Nop(),
		attendance.WithClock(func() time.Time { return f.now }),
		attendance.WithPINGenerator(func() (string, error) { return "424242", nil }),
	)
	f.lecturer = f.user("lect", "Lecturer One", attendance.RoleLecturer)
	f.other = f.user("lect2", "Lecturer Two", attendance.RoleLecturer)
	f.admin = f.user("admin", "Admin", attendance.RoleAdmin)

	class, err := f.svc.CreateClass(f.ctx, "CS101", "Intro to Programming", f.lecturer)
	require.NoError(t, err)
	f.classID = class.ID
	return f
}

func (f *fixture) user(username, fullName string, role attendance.Role) string {
	f.t.Helper()
	u := attendance.User{ID: "u-" + username, Username: username, FullName: fullName, Role: role}
	err := f.store.Atomic(f.ctx, func(ctx context.Context, r attendance.Repos) error {
		return r.Users.Create(ctx, u)
	})
	require.NoError(f.t, err)
	return u.ID
}

// student creates and enrolls a student in the fixture class.
func (f *fixture) student(username, fullName string) string {
	f.t.Helper()
	id := f.user(username, fullName, attendance.RoleStudent)
	require.NoError(f.t, f.svc.Enroll(f.ctx, f.classID, id))
	return id
}

func (f *fixture) session(date, start string) attendance.Session {
	f.t.Helper()
	sess, err := f.svc.CreateSession(f.ctx, attendance.NewSession{
		ClassID:         f.classID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: 90,
		LecturerID:      f.lecturer,
	})
	require.NoError(f.t, err)
	return sess
}

func (f *fixture) pinSession(date, start, pin string) attendance.Session {
	f.t.Helper()
	sess, err := f.svc.CreateSession(f.ctx, attendance.NewSession{
		ClassID:         f.classID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: 60,
		PINEnabled:      true,
		PIN:             &pin,
		LecturerID:      f.lecturer,
	})
	require.NoError(f.t, err)
	return sess
}

func (f *fixture) lecturerActor() attendance.Actor { return attendance.LecturerActor(f.lecturer) }

func (f *fixture) adminActor() attendance.Actor { return attendance.AdminActor(f.admin) }

func (f *fixture) record(sessionID, studentID string) *attendance.Record {
	f.t.Helper()
	rec, err := f.svc.GetRecord(f.ctx, sessionID, studentID)
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) recordCount() int {
	return f.store.Count()
}

func strPtr(s string) *string { return &s }
