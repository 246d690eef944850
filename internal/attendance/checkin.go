package attendance

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// CheckIn records a student's own attendance for an open session. It only
// ever inserts: an existing record for the pair, whatever its status, is a
// conflict.
func (s *Service) CheckIn(ctx context.Context, studentID, sessionID, pin string) (Record, error) {
	var out Record
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case SessionOpen:
		case SessionClosed:
			return fmt.Errorf("%w: session not open", ErrState)
		default:
			return fmt.Errorf("%w: session %s has unknown status %q", ErrState, sessionID, sess.Status)
		}

		if err := requireEnrolled(ctx, r, sess.ClassID, studentID); err != nil {
			return err
		}

		if sess.PINEnabled {
			pin = strings.TrimSpace(pin)
			if pin == "" {
				return fmt.Errorf("%w: PIN is required for this session", ErrValidation)
			}
			if err := ValidatePIN(pin); err != nil {
				return err
			}
			if !sessionPINMatches(sess, pin) {
				return fmt.Errorf("%w: invalid PIN", ErrAuthorization)
			}
		}

		key := RecordKey{SessionID: sessionID, StudentID: studentID}
		existing, err := getRecord(ctx, r, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: already checked in", ErrConflict)
		}

		now := s.now()
		out, err = upsertRecord(ctx, r, ledgerWrite{Key: key, Status: StatusPresent, CheckinTime: &now})
		return err
	})
	if err != nil {
		return Record{}, err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("student_id", studentID).
		Msg("student checked in")
	return out, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
