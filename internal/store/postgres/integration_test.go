package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/store"
	"classattend/internal/store/postgres"
)

// openTestStore migrates a scratch database named by TEST_DATABASE_URL from
// scratch. Every table is dropped again when the test ends.
func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	migrate := func(fn func(*store.Migrator) error) {
		db, err := store.NewDB(ctx, url)
		require.NoError(t, err)
		m, err := store.NewMigrator(db.Client, "../../../migrations")
		require.NoError(t, err)
		defer m.Close()
		require.NoError(t, fn(m))
	}
	migrate((*store.Migrator).Down)
	migrate((*store.Migrator).Up)
	t.Cleanup(func() { migrate((*store.Migrator).Down) })

	db, err := store.NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.New(db.Client, zerolog.Nop())
}

func TestPostgresLedgerContract(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := attendance.NewService(st, zerolog.Nop(), attendance.WithClock(func() time.Time { return now }))

	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
		for _, u := range []attendance.User{
			{ID: "u-lect", Username: "lect", FullName: "Lecturer", Role: attendance.RoleLecturer},
			{ID: "u-stud", Username: "stud", FullName: "Student", Role: attendance.RoleStudent},
			{ID: "u-admin", Username: "admin", FullName: "Admin", Role: attendance.RoleAdmin},
		} {
			if err := r.Users.Create(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}))

	class, err := svc.CreateClass(ctx, "CS101", "Intro", "u-lect")
	require.NoError(t, err)
	_, err = svc.CreateClass(ctx, "CS101", "Duplicate", "u-lect")
	require.ErrorIs(t, err, attendance.ErrConflict)
	require.NoError(t, svc.Enroll(ctx, class.ID, "u-stud"))

	sess, err := svc.CreateSession(ctx, attendance.NewSession{ClassID: class.ID, Date: "2026-03-02", StartTime: "09:00", DurationMinutes: 60})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, attendance.NewSession{ClassID: class.ID, Date: "2026-03-02", StartTime: "09:00", DurationMinutes: 30})
	require.ErrorIs(t, err, attendance.ErrConflict)

	_, err = svc.CheckIn(ctx, "u-stud", sess.ID, "")
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, "u-stud", sess.ID, "")
	require.ErrorIs(t, err, attendance.ErrConflict)

	t.Run("correction keeps checkin time and sets note", func(t *testing.T) {
		note := "bus"
		rec, err := svc.SetStatus(ctx, attendance.LecturerActor("u-lect"), sess.ID, "u-stud", attendance.StatusLate, &note)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusLate, rec.Status)
		require.NotNil(t, rec.CheckinTime)
		assert.True(t, now.Equal(*rec.CheckinTime))
		require.NotNil(t, rec.Note)
		assert.Equal(t, "bus", *rec.Note)
	})

	t.Run("status-only update keeps note", func(t *testing.T) {
		n, err := svc.MarkAllPresent(ctx, attendance.LecturerActor("u-lect"), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		rec, err := svc.GetRecord(ctx, sess.ID, "u-stud")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		require.NotNil(t, rec.Note)
		assert.Equal(t, "bus", *rec.Note)
		require.NotNil(t, rec.CheckinTime)
	})

	t.Run("one pending request per student and session", func(t *testing.T) {
		req := attendance.Request{
			ID: "req-1", StudentID: "u-stud", SessionID: sess.ID, Type: attendance.RequestAbsent,
			Reason: "flu", Status: attendance.RequestPending, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, st.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
			return r.Requests.Create(ctx, req)
		}))
		req.ID = "req-2"
		err := st.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
			return r.Requests.Create(ctx, req)
		})
		require.ErrorIs(t, err, attendance.ErrConflict)

		approved, err := svc.Approve(ctx, attendance.LecturerActor("u-lect"), "req-1", nil)
		require.NoError(t, err)
		assert.Equal(t, attendance.RequestApproved, approved.Status)
		rec, err := svc.GetRecord(ctx, sess.ID, "u-stud")
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusExcused, rec.Status)
	})

	t.Run("failed unit of work leaves no trace", func(t *testing.T) {
		err := st.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
			if _, err := r.Records.Delete(ctx, attendance.RecordKey{SessionID: sess.ID, StudentID: "u-stud"}); err != nil {
				return err
			}
			return attendance.ErrState
		})
		require.ErrorIs(t, err, attendance.ErrState)
		rec, err := svc.GetRecord(ctx, sess.ID, "u-stud")
		require.NoError(t, err)
		assert.NotNil(t, rec)
	})

	t.Run("warnings are stored once", func(t *testing.T) {
		for _, d := range []string{"2026-03-09", "2026-03-16", "2026-03-23"} {
			_, err := svc.CreateSession(ctx, attendance.NewSession{ClassID: class.ID, Date: d, StartTime: "09:00", DurationMinutes: 60})
			require.NoError(t, err)
		}
		created, err := svc.GenerateWarningsForClass(ctx, class.ID, attendance.DateRange{})
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		created, err = svc.GenerateWarningsForClass(ctx, class.ID, attendance.DateRange{})
		require.NoError(t, err)
		assert.Zero(t, created)
	})
}
