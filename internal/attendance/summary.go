package attendance

import (
	"context"
	"fmt"
	"math"
)

// classLedger is the session × student grid of a class over a date range.
type classLedger struct {
	sessions []Session
	students []string
	records  map[RecordKey]*Record
}

func loadClassLedger(ctx context.Context, r Repos, classID string, rng DateRange) (*classLedger, error) {
	if _, err := loadClass(ctx, r, classID); err != nil {
		return nil, err
	}
	sessions, err := r.Sessions.List(ctx, SessionFilter{ClassID: classID, Range: rng})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	students, err := r.Enrollments.ListStudents(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	var records []Record
	if len(ids) > 0 {
		records, err = r.Records.ListBySessions(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
	}
	return &classLedger{sessions: sessions, students: students, records: recordsBySession(records)}, nil
}

// count tallies the effective statuses of one student across all sessions.
func (l *classLedger) count(studentID string) StudentSummary {
	sum := StudentSummary{StudentID: studentID, TotalSessions: len(l.sessions)}
	for _, sess := range l.sessions {
		switch EffectiveStatus(l.records[RecordKey{SessionID: sess.ID, StudentID: studentID}]) {
		case StatusPresent:
			sum.Present++
		case StatusLate:
			sum.Late++
		case StatusAbsent:
			sum.Absent++
		case StatusExcused:
			sum.Excused++
		}
	}
	sum.AttendanceRate = AttendanceRate(sum.Present, sum.Late, sum.Excused, sum.TotalSessions)
	return sum
}

// AttendanceRate is (present+late+excused)/total as a percentage rounded to
// two decimals. It is 0 when there are no sessions.
func AttendanceRate(present, late, excused, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(present+late+excused) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// Summarize aggregates per-student counts for a class over an inclusive date
// range. Missing ledger records count as Absent.
func (s *Service) Summarize(ctx context.Context, classID string, rng DateRange) ([]StudentSummary, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	var out []StudentSummary
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		l, err := loadClassLedger(ctx, r, classID, rng)
		if err != nil {
			return err
		}
		names, err := studentNames(ctx, r, l.students)
		if err != nil {
			return err
		}
		out = make([]StudentSummary, 0, len(l.students))
		for _, studentID := range l.students {
			sum := l.count(studentID)
			sum.Name = names[studentID]
			out = append(out, sum)
		}
		return nil
	})
	return out, err
}

// ListDetailRecords returns one row per session × enrolled student with the
// effective status, for tabular export.
func (s *Service) ListDetailRecords(ctx context.Context, classID string, rng DateRange) ([]DetailRow, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	var out []DetailRow
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		l, err := loadClassLedger(ctx, r, classID, rng)
		if err != nil {
			return err
		}
		names, err := studentNames(ctx, r, l.students)
		if err != nil {
			return err
		}
		out = make([]DetailRow, 0, len(l.sessions)*len(l.students))
		for _, sess := range l.sessions {
			for _, studentID := range l.students {
				rec := l.records[RecordKey{SessionID: sess.ID, StudentID: studentID}]
				row := DetailRow{
					SessionID:   sess.ID,
					ClassID:     sess.ClassID,
					Date:        sess.Date,
					StartTime:   sess.StartTime,
					StudentID:   studentID,
					StudentName: names[studentID],
					Status:      EffectiveStatus(rec),
				}
				if rec != nil {
					row.CheckinTime = rec.CheckinTime
					row.Note = rec.Note
				}
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}
