package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Actor is the user on whose behalf an operation runs. An empty UserID on a
// lecturer actor skips the class ownership check.
type Actor struct {
	UserID string
	Role   Role
}

// LecturerActor returns a lecturer actor.
func LecturerActor(id string) Actor { return Actor{UserID: id, Role: RoleLecturer} }

// AdminActor returns an admin actor.
func AdminActor(id string) Actor { return Actor{UserID: id, Role: RoleAdmin} }

// Service coordinates sessions, the attendance ledger, requests and warnings.
type Service struct {
	store  Store
	log    zerolog.Logger
	now    func() time.Time
	newPIN func() (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPINGenerator overrides how PINs are generated for PIN-enabled sessions.
func WithPINGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newPIN = gen }
}

// NewService creates a service backed by a store.
func NewService(store Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		log:    log.With().Str("component", "attendance").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		newPIN: RandomPIN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) atomic(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return s.store.Atomic(ctx, fn)
}

func loadClass(ctx context.Context, r Repos, id string) (*Class, error) {
	c, err := r.Classes.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: class %s", ErrNotFound, id)
	}
	return c, nil
}

func loadSession(ctx context.Context, r Repos, id string) (*Session, error) {
	sess, err := r.Sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return sess, nil
}

func loadUser(ctx context.Context, r Repos, id string) (*User, error) {
	u, err := r.Users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func requireEnrolled(ctx context.Context, r Repos, classID, studentID string) error {
	ok, err := r.Enrollments.IsEnrolled(ctx, classID, studentID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: student %s is not enrolled in class %s", ErrAuthorization, studentID, classID)
	}
	return nil
}

// requireStaff checks that the actor may manage the given class. Lecturers
// must own it; admins may manage any class.
func requireStaff(actor Actor, class *Class) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleLecturer:
		if actor.UserID != "" && actor.UserID != class.LecturerID {
			return fmt.Errorf("%w: lecturer %s does not own class %s", ErrAuthorization, actor.UserID, class.ID)
		}
		return nil
	case RoleStudent:
		return fmt.Errorf("%w: students cannot manage attendance", ErrAuthorization)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrAuthorization, actor.Role)
	}
}

// studentNames resolves display names, falling back to the id for unknown users.
func studentNames(ctx context.Context, r Repos, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		u, err := r.Users.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		switch {
		case u == nil:
			names[id] = id
		case u.FullName != "":
			names[id] = u.FullName
		default:
			names[id] = u.Username
		}
	}
	return names, nil
}
