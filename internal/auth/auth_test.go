package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *time.Time) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, Config{
		Issuer:     "test",
		SigningKey: "secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, zerolog.Nop())
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	_, err := svc.CreateUser(context.Background(), NewUser{
		Username: "alice", FullName: "Alice", Role: attendance.RoleStudent, Password: "correct-horse",
	})
	require.NoError(t, err)
	return svc, st, &now
}

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("u1", attendance.RoleLecturer, "iss", "key", time.Minute, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(pair.AccessToken, "key", "iss")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, TokenAccess, claims.TokenType)
	assert.Equal(t, attendance.LecturerActor("u1"), claims.Actor())

	refresh, err := Parse(pair.RefreshToken, "key", "iss")
	require.NoError(t, err)
	assert.Equal(t, TokenRefresh, refresh.TokenType)

	_, err = Parse(pair.AccessToken, "other-key", "iss")
	assert.Error(t, err)
	_, err = Parse(pair.AccessToken, "key", "other-issuer")
	assert.Error(t, err)
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Login(context.Background(), " alice ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, attendance.RoleStudent, res.User.Role)

	claims, err := Parse(res.Tokens.AccessToken, "secret", "test")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "bob", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLockout(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}
	_, err := svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrLocked)

	// Correct password is refused while locked.
	*now = now.Add(9 * time.Minute)
	_, err = svc.Login(ctx, "alice", "correct-horse")
	require.ErrorIs(t, err, ErrLocked)

	*now = now.Add(2 * time.Minute)
	_, err = svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	// The success reset the counter.
	_, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	pair, err := svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = svc.Refresh(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, NewUser{Username: "", Role: attendance.RoleStudent, Password: "secret1"})
	require.ErrorIs(t, err, attendance.ErrValidation)
	_, err = svc.CreateUser(ctx, NewUser{Username: "x", Role: "JANITOR", Password: "secret1"})
	require.ErrorIs(t, err, attendance.ErrValidation)
	_, err = svc.CreateUser(ctx, NewUser{Username: "x", Role: attendance.RoleAdmin, Password: "123"})
	require.ErrorIs(t, err, attendance.ErrValidation)
	_, err = svc.CreateUser(ctx, NewUser{Username: "alice", Role: attendance.RoleAdmin, Password: "secret1"})
	require.ErrorIs(t, err, attendance.ErrConflict)
}
