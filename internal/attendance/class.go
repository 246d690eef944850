package attendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateClass registers a class owned by a lecturer.
func (s *Service) CreateClass(ctx context.Context, code, name, lecturerID string) (Class, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Class{}, fmt.Errorf("%w: class code and name are required", ErrValidation)
	}
	class := Class{ID: uuid.NewString(), Code: code, Name: name, LecturerID: lecturerID}

	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		lecturer, err := loadUser(ctx, r, lecturerID)
		if err != nil {
			return err
		}
		if lecturer.Role != RoleLecturer {
			return fmt.Errorf("%w: user %s is not a lecturer", ErrValidation, lecturerID)
		}
		if err := r.Classes.Create(ctx, class); err != nil {
			return fmt.Errorf("create class: %w", err)
		}
		return nil
	})
	if err != nil {
		return Class{}, err
	}
	s.log.Info().Str("class_id", class.ID).Str("code", class.Code).Msg("class created")
	return class, nil
}

// GetClass returns a class by id.
func (s *Service) GetClass(ctx context.Context, classID string) (Class, error) {
	var out Class
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		c, err := loadClass(ctx, r, classID)
		if err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, err
}

// Enroll adds a student to a class.
func (s *Service) Enroll(ctx context.Context, classID, studentID string) error {
	return s.atomic(ctx, func(ctx context.Context, r Repos) error {
		if _, err := loadClass(ctx, r, classID); err != nil {
			return err
		}
		student, err := loadUser(ctx, r, studentID)
		if err != nil {
			return err
		}
		if student.Role != RoleStudent {
			return fmt.Errorf("%w: user %s is not a student", ErrValidation, studentID)
		}
		if err := r.Enrollments.Add(ctx, classID, studentID); err != nil {
			return fmt.Errorf("enroll: %w", err)
		}
		return nil
	})
}

// Unenroll removes a student from a class. Existing ledger records are kept.
func (s *Service) Unenroll(ctx context.Context, classID, studentID string) error {
	return s.atomic(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Enrollments.Remove(ctx, classID, studentID); err != nil {
			return fmt.Errorf("unenroll: %w", err)
		}
		return nil
	})
}

// AuthorizeClass checks that the actor may read or manage a class.
func (s *Service) AuthorizeClass(ctx context.Context, actor Actor, classID string) error {
	return s.atomic(ctx, func(ctx context.Context, r Repos) error {
		class, err := loadClass(ctx, r, classID)
		if err != nil {
			return err
		}
		return requireStaff(actor, class)
	})
}

// ListClasses returns the classes taught by a lecturer ordered by code.
func (s *Service) ListClasses(ctx context.Context, lecturerID string) ([]Class, error) {
	var out []Class
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		list, err := r.Classes.ListByLecturer(ctx, lecturerID)
		if err != nil {
			return fmt.Errorf("list classes: %w", err)
		}
		out = list
		return nil
	})
	return out, err
}
