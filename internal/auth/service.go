package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"classattend/internal/attendance"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLocked             = errors.New("account temporarily locked")
	ErrInvalidToken       = errors.New("invalid token")
)

// Config holds token and lockout settings.
type Config struct {
	Issuer         string
	SigningKey     string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	LockAfterFails int
	LockDuration   time.Duration
}

// Service authenticates users against the account store.
type Service struct {
	store attendance.Store
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates an auth service.
func NewService(store attendance.Store, cfg Config, log zerolog.Logger) *Service {
	if cfg.LockAfterFails <= 0 {
		cfg.LockAfterFails = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 10 * time.Minute
	}
	return &Service{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "auth").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User   attendance.User `json:"user"`
	Tokens TokenPair       `json:"tokens"`
}

// Login checks a password. Once the failure count reaches LockAfterFails the
// account is locked for LockDuration; only a success resets the counter.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	var (
		user     attendance.User
		loginErr error
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
		u, err := r.Users.GetByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			loginErr = ErrInvalidCredentials
			return nil
		}
		now := s.now()
		if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
			loginErr = ErrLocked
			return nil
		}

		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			u.FailedAttempts++
			if u.FailedAttempts >= s.cfg.LockAfterFails {
				until := now.Add(s.cfg.LockDuration)
				u.LockedUntil = &until
				loginErr = ErrLocked
				s.log.Warn().Str("user_id", u.ID).Time("locked_until", until).Msg("account locked")
			} else {
				loginErr = ErrInvalidCredentials
			}
			return r.Users.UpdateLoginState(ctx, *u)
		}

		if u.FailedAttempts != 0 || u.LockedUntil != nil {
			u.FailedAttempts = 0
			u.LockedUntil = nil
			if err := r.Users.UpdateLoginState(ctx, *u); err != nil {
				return err
			}
		}
		user = *u
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}
	if loginErr != nil {
		return LoginResult{}, loginErr
	}

	tokens, err := Issue(user.ID, user.Role, s.cfg.Issuer, s.cfg.SigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("login")
	return LoginResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := Parse(refreshToken, s.cfg.SigningKey, s.cfg.Issuer)
	if err != nil || claims.TokenType != TokenRefresh {
		return TokenPair{}, ErrInvalidToken
	}
	var user *attendance.User
	err = s.store.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
		u, err := r.Users.Get(ctx, claims.Subject)
		user = u
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}
	if user == nil {
		return TokenPair{}, ErrInvalidToken
	}
	return Issue(user.ID, user.Role, s.cfg.Issuer, s.cfg.SigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
}

// NewUser is the input for CreateUser.
type NewUser struct {
	Username string
	FullName string
	Role     attendance.Role
	Password string
}

// CreateUser stores an account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (attendance.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return attendance.User{}, fmt.Errorf("%w: username is required", attendance.ErrValidation)
	}
	if !in.Role.Valid() {
		return attendance.User{}, fmt.Errorf("%w: unknown role %q", attendance.ErrValidation, in.Role)
	}
	if len(in.Password) < 6 {
		return attendance.User{}, fmt.Errorf("%w: password must be at least 6 characters", attendance.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return attendance.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := attendance.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		PasswordHash: string(hash),
	}
	err = s.store.Atomic(ctx, func(ctx context.Context, r attendance.Repos) error {
		if err := r.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return attendance.User{}, err
	}
	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}
