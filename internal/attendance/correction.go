package attendance

import (
	"context"
	"fmt"
	"sort"
)

// SetStatus records or corrects a student's status for a session. It is the
// one ledger path allowed to both create and update.
//
// Lecturer corrections are refused once the session is CLOSED; admin
// corrections are allowed in any session state and additionally require the
// student account to exist.
func (s *Service) SetStatus(ctx context.Context, actor Actor, sessionID, studentID string, status Status, note *string) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	var out Record
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
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

		switch actor.Role {
		case RoleLecturer:
			if sess.Status == SessionClosed {
				return fmt.Errorf("%w: cannot update attendance, session is closed", ErrState)
			}
		case RoleAdmin:
			if _, err := loadUser(ctx, r, studentID); err != nil {
				return err
			}
		}

		if err := requireEnrolled(ctx, r, sess.ClassID, studentID); err != nil {
			return err
		}

		out, err = upsertRecord(ctx, r, ledgerWrite{
			Key:    RecordKey{SessionID: sessionID, StudentID: studentID},
			Status: status,
			Note:   note,
		})
		return err
	})
	if err != nil {
		return Record{}, err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("student_id", studentID).
		Str("status", string(status)).
		Str("role", string(actor.Role)).
		Msg("attendance status set")
	return out, nil
}

// MarkAllPresent sets every enrolled student of the session's class to
// Present in one unit of work. Existing notes are kept. The lecturer path is
// refused on CLOSED sessions. It returns the number of students written.
func (s *Service) MarkAllPresent(ctx context.Context, actor Actor, sessionID string) (int, error) {
	var n int
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
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
		if actor.Role == RoleLecturer && sess.Status == SessionClosed {
			return fmt.Errorf("%w: cannot mark attendance, session is closed", ErrState)
		}

		students, err := r.Enrollments.ListStudents(ctx, sess.ClassID)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		for _, studentID := range students {
			key := RecordKey{SessionID: sessionID, StudentID: studentID}
			if _, err := upsertRecord(ctx, r, ledgerWrite{Key: key, Status: StatusPresent}); err != nil {
				return err
			}
		}
		n = len(students)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Str("session_id", sessionID).Int("students", n).Msg("marked all present")
	return n, nil
}

// Roster lists every enrolled student of the session's class with their
// effective status. Students without a record are reported Absent.
func (s *Service) Roster(ctx context.Context, sessionID string) ([]RosterEntry, error) {
	var out []RosterEntry
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		sess, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		students, err := r.Enrollments.ListStudents(ctx, sess.ClassID)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		names, err := studentNames(ctx, r, students)
		if err != nil {
			return err
		}
		records, err := r.Records.ListBySessions(ctx, []string{sessionID})
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		byKey := recordsBySession(records)

		out = make([]RosterEntry, 0, len(students))
		for _, studentID := range students {
			rec := byKey[RecordKey{SessionID: sessionID, StudentID: studentID}]
			entry := RosterEntry{
				StudentID: studentID,
				Name:      names[studentID],
				Status:    EffectiveStatus(rec),
				Recorded:  rec != nil,
			}
			if rec != nil {
				entry.Note = rec.Note
			}
			out = append(out, entry)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

// DeleteRecord removes an incorrect ledger record. Admin only.
func (s *Service) DeleteRecord(ctx context.Context, actor Actor, sessionID, studentID string) error {
	if actor.Role != RoleAdmin {
		return fmt.Errorf("%w: only admins can delete attendance records", ErrAuthorization)
	}
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		deleted, err := r.Records.Delete(ctx, RecordKey{SessionID: sessionID, StudentID: studentID})
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if !deleted {
			return fmt.Errorf("%w: no attendance record for session %s and student %s", ErrNotFound, sessionID, studentID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("session_id", sessionID).Str("student_id", studentID).Msg("attendance record deleted")
	return nil
}

// RecordFilter narrows SearchRecords. Empty fields do not filter.
type RecordFilter struct {
	StudentID string
	SessionID string
	ClassID   string
	Range     DateRange
}

// SearchRecords returns stored ledger records matching the filter, newest
// session first. Implicit absences are not included.
func (s *Service) SearchRecords(ctx context.Context, f RecordFilter) ([]DetailRow, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	var out []DetailRow
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		var sessions []Session
		switch {
		case f.SessionID != "":
			sess, err := r.Sessions.Get(ctx, f.SessionID)
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			if sess != nil && (f.ClassID == "" || sess.ClassID == f.ClassID) && f.Range.Contains(sess.Date) {
				sessions = append(sessions, *sess)
			}
		case f.ClassID != "":
			list, err := r.Sessions.List(ctx, SessionFilter{ClassID: f.ClassID, Range: f.Range})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			sessions = list
		default:
			list, err := r.Sessions.List(ctx, SessionFilter{Range: f.Range})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			sessions = list
		}
		if len(sessions) == 0 {
			return nil
		}

		byID := make(map[string]Session, len(sessions))
		ids := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			byID[sess.ID] = sess
			ids = append(ids, sess.ID)
		}
		records, err := r.Records.ListBySessions(ctx, ids)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}

		var studentIDs []string
		seen := make(map[string]bool)
		for _, rec := range records {
			if f.StudentID != "" && rec.StudentID != f.StudentID {
				continue
			}
			if !seen[rec.StudentID] {
				seen[rec.StudentID] = true
				studentIDs = append(studentIDs, rec.StudentID)
			}
		}
		names, err := studentNames(ctx, r, studentIDs)
		if err != nil {
			return err
		}

		for _, rec := range records {
			if f.StudentID != "" && rec.StudentID != f.StudentID {
				continue
			}
			sess := byID[rec.SessionID]
			out = append(out, DetailRow{
				SessionID:   sess.ID,
				ClassID:     sess.ClassID,
				Date:        sess.Date,
				StartTime:   sess.StartTime,
				StudentID:   rec.StudentID,
				StudentName: names[rec.StudentID],
				Status:      rec.Status,
				CheckinTime: rec.CheckinTime,
				Note:        rec.Note,
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Date != out[j].Date {
				return out[i].Date > out[j].Date
			}
			if out[i].StartTime != out[j].StartTime {
				return out[i].StartTime > out[j].StartTime
			}
			return out[i].StudentName < out[j].StudentName
		})
		return nil
	})
	return out, err
}
