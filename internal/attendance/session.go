package attendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewSession is the input of CreateSession. LecturerID, when set, must be the
// owner of the class. PIN is only used when PINEnabled is true; a blank PIN
// makes the service generate one.
type NewSession struct {
	ClassID         string
	Date            string
	StartTime       string
	DurationMinutes int
	PINEnabled      bool
	PIN             *string
	LecturerID      string
}

// CreateSession opens a new attendance session for a class.
func (s *Service) CreateSession(ctx context.Context, in NewSession) (Session, error) {
	if err := ValidateDate(in.Date); err != nil {
		return Session{}, err
	}
	if err := ValidateTime(in.StartTime); err != nil {
		return Session{}, err
	}
	if in.DurationMinutes <= 0 {
		return Session{}, fmt.Errorf("%w: duration must be a positive number of minutes", ErrValidation)
	}

	var pin *string
	if in.PINEnabled {
		if p := trimmed(in.PIN); p != nil {
			if err := ValidatePIN(*p); err != nil {
				return Session{}, err
			}
			pin = p
		} else {
			generated, err := s.newPIN()
			if err != nil {
				return Session{}, err
			}
			pin = &generated
		}
	}

	sess := Session{
		ID:              uuid.NewString(),
		ClassID:         in.ClassID,
		Date:            in.Date,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		PINEnabled:      in.PINEnabled,
		PIN:             pin,
		Status:          SessionOpen,
		CreatedAt:       s.now(),
	}

	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		class, err := loadClass(ctx, r, in.ClassID)
		if err != nil {
			return err
		}
		if in.LecturerID != "" && in.LecturerID != class.LecturerID {
			return fmt.Errorf("%w: lecturer %s does not own class %s", ErrAuthorization, in.LecturerID, class.ID)
		}
		if err := r.Sessions.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("class_id", sess.ClassID).
		Str("date", sess.Date).
		Str("start_time", sess.StartTime).
		Bool("pin_enabled", sess.PINEnabled).
		Msg("session opened")
	return sess, nil
}

// CloseSession moves a session to CLOSED. Closing an already closed session
// is a no-op.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	var changed bool
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case SessionClosed:
			return nil
		case SessionOpen:
			changed = true
			if err := r.Sessions.UpdateStatus(ctx, sessionID, SessionClosed); err != nil {
				return fmt.Errorf("close session: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("%w: session %s has unknown status %q", ErrState, sessionID, sess.Status)
		}
	})
	if err != nil {
		return err
	}
	if changed {
		s.log.Info().Str("session_id", sessionID).Msg("session closed")
	}
	return nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		out = *sess
		return nil
	})
	return out, err
}

// ListSessions returns the sessions of a class within an inclusive date range.
func (s *Service) ListSessions(ctx context.Context, classID string, rng DateRange) ([]Session, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	var out []Session
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		if _, err := loadClass(ctx, r, classID); err != nil {
			return err
		}
		sessions, err := r.Sessions.List(ctx, SessionFilter{ClassID: classID, Range: rng})
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out = sessions
		return nil
	})
	return out, err
}

// AuthorizeSession checks that the actor may manage the class of a session.
func (s *Service) AuthorizeSession(ctx context.Context, actor Actor, sessionID string) error {
	return s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		class, err := loadClass(ctx, r, sess.ClassID)
		if err != nil {
			return err
		}
		return requireStaff(actor, class)
	})
}

// sessionPINMatches compares PINs in constant time.
func sessionPINMatches(sess *Session, input string) bool {
	if sess.PIN == nil {
		return false
	}
	return constantTimeEqual(strings.TrimSpace(input), *sess.PIN)
}
