package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	AbsenceThreshold = 3
	LateThreshold    = 3
)

var (
	AbsenceWarningMessage = fmt.Sprintf("Absence threshold reached (%d)", AbsenceThreshold)
	LateWarningMessage    = fmt.Sprintf("Late threshold reached (%d)", LateThreshold)
)

// GenerateWarningsForClass emits threshold warnings for students of a class
// and returns how many new warnings were stored. A message is stored at most
// once per (student, class), so repeated runs over unchanged data create none.
func (s *Service) GenerateWarningsForClass(ctx context.Context, classID string, rng DateRange) (int, error) {
	if err := rng.Validate(); err != nil {
		return 0, err
	}
	var created int
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		l, err := loadClassLedger(ctx, r, classID, rng)
		if err != nil {
			return err
		}
		existing, err := r.Warnings.List(ctx, WarningFilter{ClassID: classID})
		if err != nil {
			return fmt.Errorf("list warnings: %w", err)
		}
		have := make(map[[2]string]bool, len(existing))
		for _, w := range existing {
			have[[2]string{w.StudentID, w.Message}] = true
		}

		now := s.now()
		for _, studentID := range l.students {
			sum := l.count(studentID)
			var messages []string
			if sum.Absent >= AbsenceThreshold {
				messages = append(messages, AbsenceWarningMessage)
			}
			if sum.Late >= LateThreshold {
				messages = append(messages, LateWarningMessage)
			}
			for _, msg := range messages {
				key := [2]string{studentID, msg}
				if have[key] {
					continue
				}
				ok, err := r.Warnings.Create(ctx, Warning{
					ID:        uuid.NewString(),
					StudentID: studentID,
					ClassID:   classID,
					Message:   msg,
					CreatedAt: now,
				})
				if err != nil {
					return fmt.Errorf("create warning: %w", err)
				}
				have[key] = true
				if ok {
					created++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		s.log.Info().Str("class_id", classID).Int("created", created).Msg("warnings generated")
	}
	return created, nil
}

// ListWarnings returns warnings matching the filter, newest first.
func (s *Service) ListWarnings(ctx context.Context, f WarningFilter) ([]Warning, error) {
	var out []Warning
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		list, err := r.Warnings.List(ctx, f)
		if err != nil {
			return fmt.Errorf("list warnings: %w", err)
		}
		out = list
		return nil
	})
	return out, err
}

// MarkWarningSeen flags a student's own warning as seen.
func (s *Service) MarkWarningSeen(ctx context.Context, studentID, warningID string) error {
	return s.atomic(ctx, func(ctx context.Context, r Repos) error {
		w, err := r.Warnings.Get(ctx, warningID)
		if err != nil {
			return fmt.Errorf("get warning: %w", err)
		}
		if w == nil || w.StudentID != studentID {
			return fmt.Errorf("%w: warning %s", ErrNotFound, warningID)
		}
		if w.Seen {
			return nil
		}
		if err := r.Warnings.MarkSeen(ctx, warningID); err != nil {
			return fmt.Errorf("mark warning seen: %w", err)
		}
		return nil
	})
}
