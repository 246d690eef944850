package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EffectiveStatus applies the implicit absence rule: a missing ledger record
// counts as Absent. Every read and aggregate path goes through it.
func EffectiveStatus(rec *Record) Status {
	if rec == nil {
		return StatusAbsent
	}
	return rec.Status
}

// ledgerWrite is one upsert against the attendance ledger. Nil CheckinTime or
// Note leave the stored value untouched on update.
type ledgerWrite struct {
	Key         RecordKey
	Status      Status
	CheckinTime *time.Time
	Note        *string
}

func upsertRecord(ctx context.Context, r Repos, w ledgerWrite) (Record, error) {
	if !w.Status.Valid() {
		return Record{}, fmt.Errorf("%w: invalid status %q", ErrValidation, w.Status)
	}
	rec, err := r.Records.Upsert(ctx, Record{
		ID:          uuid.NewString(),
		SessionID:   w.Key.SessionID,
		StudentID:   w.Key.StudentID,
		Status:      w.Status,
		CheckinTime: w.CheckinTime,
		Note:        w.Note,
	})
	if err != nil {
		return Record{}, fmt.Errorf("upsert record: %w", err)
	}
	return rec, nil
}

func getRecord(ctx context.Context, r Repos, key RecordKey) (*Record, error) {
	rec, err := r.Records.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetRecord returns the stored ledger record for a student in a session, or
// nil when none exists.
func (s *Service) GetRecord(ctx context.Context, sessionID, studentID string) (*Record, error) {
	var out *Record
	err := s.atomic(ctx, func(ctx context.Context, r Repos) error {
		rec, err := getRecord(ctx, r, RecordKey{SessionID: sessionID, StudentID: studentID})
		out = rec
		return err
	})
	return out, err
}

// recordsBySession indexes records by (session, student).
func recordsBySession(records []Record) map[RecordKey]*Record {
	out := make(map[RecordKey]*Record, len(records))
	for i := range records {
		out[records[i].Key()] = &records[i]
	}
	return out
}
