package attendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	noteExcusedByRequest = "Excused by approved request"
	noteAbsentByRequest  = "Absent by rejected request"
)

// NewRequest is the input of SubmitRequest.
type NewRequest struct {
	StudentID    string
	SessionID    string
	Type         RequestType
	Reason       string
	EvidencePath *string
}

// SubmitRequest files a PENDING absence/late request. The session must exist,
// the student must be enrolled in its class and must not already have a
// pending request for it.
func (s *Service) SubmitRequest(ctx context.Context, in NewRequest) (Request, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Request{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if !in.Type.Valid() {
		return Request{}, fmt.Errorf("%w: invalid request type %q", ErrValidation, in.Type)
	}

	now := s.now()
	req := Request{
		ID:           uuid.NewString(),
		StudentID:    in.StudentID,
		SessionID:    in.SessionID,
		Type:         in.Type,
		Reason:       reason,
		EvidencePath: trimmed(in.EvidencePath),
		Status:       RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, in.SessionID)
		if err != nil {
			return err
		}
		if err := requireEnrolled(ctx, r, sess.ClassID, in.StudentID); err != nil {
			return err
		}
		pending, err := r.Requests.List(ctx, RequestFilter{
			StudentID:  in.StudentID,
			SessionIDs: []string{in.SessionID},
			Status:     RequestPending,
		})
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: a pending request already exists for this session", ErrConflict)
		}
		if err := r.Requests.Create(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("student_id", req.StudentID).
		Str("session_id", req.SessionID).
		Str("type", string(req.Type)).
		Msg("request submitted")
	return req, nil
}

// Approve accepts a pending request and marks the student Excused for the
// session.
func (s *Service) Approve(ctx context.Context, actor Actor, requestID string, comment *string) (Request, error) {
	return s.resolve(ctx, actor, requestID, RequestApproved, comment)
}

// Reject declines a pending request and marks the student Absent for the
// session.
func (s *Service) Reject(ctx context.Context, actor Actor, requestID string, comment *string) (Request, error) {
	return s.resolve(ctx, actor, requestID, RequestRejected, comment)
}

// resolve performs the terminal transition of a request together with its
// ledger side effect. Both happen or neither does.
func (s *Service) resolve(ctx context.Context, actor Actor, requestID string, outcome RequestStatus, comment *string) (Request, error) {
	var (
		status Status
		note   string
	)
	switch outcome {
	case RequestApproved:
		status, note = StatusExcused, noteExcusedByRequest
	case RequestRejected:
		status, note = StatusAbsent, noteAbsentByRequest
	default:
		return Request{}, fmt.Errorf("%w: %q is not a terminal request status", ErrValidation, outcome)
	}

	var out Request
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		req, err := r.Requests.Get(ctx, requestID)
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}
		if req == nil {
			return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		if req.Status != RequestPending {
			return fmt.Errorf("%w: request is not pending (status %s)", ErrState, req.Status)
		}

		sess, err := loadSession(ctx, r, req.SessionID)
		if err != nil {
			return err
		}
		class, err := loadClass(ctx, r, sess.ClassID)
		if err != nil {
			return err
		}
		if err := requireStaff(actor, class); err != nil {
			return err
		}

		req.Status = outcome
		req.LecturerComment = trimmed(comment)
		req.UpdatedAt = s.now()
		if err := r.Requests.Update(ctx, *req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		key := RecordKey{SessionID: req.SessionID, StudentID: req.StudentID}
		existing, err := getRecord(ctx, r, key)
		if err != nil {
			return err
		}
		w := ledgerWrite{Key: key, Status: status}
		if existing == nil {
			w.Note = &note
		}
		if _, err := upsertRecord(ctx, r, w); err != nil {
			return err
		}
		out = *req
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("outcome", string(outcome)).
		Str("session_id", out.SessionID).
		Str("student_id", out.StudentID).
		Msg("request resolved")
	return out, nil
}

// GetRequest returns a request by id.
func (s *Service) GetRequest(ctx context.Context, requestID string) (Request, error) {
	var out Request
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		req, err := r.Requests.Get(ctx, requestID)
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}
		if req == nil {
			return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		out = *req
		return nil
	})
	return out, err
}

// ListRequestsForLecturer returns requests filed against sessions of the
// lecturer's classes, newest first.
func (s *Service) ListRequestsForLecturer(ctx context.Context, lecturerID string, pendingOnly bool) ([]Request, error) {
	var out []Request
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		classes, err := r.Classes.ListByLecturer(ctx, lecturerID)
		if err != nil {
			return fmt.Errorf("list classes: %w", err)
		}
		var sessionIDs []string
		for _, c := range classes {
			sessions, err := r.Sessions.List(ctx, SessionFilter{ClassID: c.ID})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, sess := range sessions {
				sessionIDs = append(sessionIDs, sess.ID)
			}
		}
		if len(sessionIDs) == 0 {
			return nil
		}
		f := RequestFilter{SessionIDs: sessionIDs}
		if pendingOnly {
			f.Status = RequestPending
		}
		out, err = r.Requests.List(ctx, f)
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		return nil
	})
	return out, err
}

// ListRequestsForStudent returns a student's own requests, optionally by status.
func (s *Service) ListRequestsForStudent(ctx context.Context, studentID string, status RequestStatus) ([]Request, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: invalid request status %q", ErrValidation, status)
	}
	var out []Request
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		list, err := r.Requests.List(ctx, RequestFilter{StudentID: studentID, Status: status})
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		out = list
		return nil
	})
	return out, err
}
