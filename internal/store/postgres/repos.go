package postgres

import (
	"context"
	"fmt"
	"strings"

	"classattend/internal/attendance"
)

type userRepo struct{ q dbtx }

const userColumns = `id, username, full_name, role, password_hash, failed_attempts, locked_until`

func scanUser(row interface{ Scan(...any) error }) (*attendance.User, error) {
	var u attendance.User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.PasswordHash, &u.FailedAttempts, &u.LockedUntil); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Get(ctx context.Context, id string) (*attendance.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if noRows(err) {
		return nil, nil
	}
	return u, mapErr("postgres.userRepo.Get", err)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*attendance.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if noRows(err) {
		return nil, nil
	}
	return u, mapErr("postgres.userRepo.GetByUsername", err)
}

func (r *userRepo) Create(ctx context.Context, u attendance.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, role, password_hash, failed_attempts, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.FullName, string(u.Role), u.PasswordHash, u.FailedAttempts, u.LockedUntil)
	return mapErr("postgres.userRepo.Create", err)
}

func (r *userRepo) UpdateLoginState(ctx context.Context, u attendance.User) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users SET failed_attempts = $2, locked_until = $3 WHERE id = $1
	`, u.ID, u.FailedAttempts, u.LockedUntil)
	return mapErr("postgres.userRepo.UpdateLoginState", err)
}

type classRepo struct{ q dbtx }

func (r *classRepo) Get(ctx context.Context, id string) (*attendance.Class, error) {
	var c attendance.Class
	err := r.q.QueryRowContext(ctx, `
		SELECT id, code, name, lecturer_id FROM classes WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("postgres.classRepo.Get", err)
	}
	return &c, nil
}

func (r *classRepo) Create(ctx context.Context, c attendance.Class) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO classes (id, code, name, lecturer_id) VALUES ($1, $2, $3, $4)
	`, c.ID, c.Code, c.Name, c.LecturerID)
	return mapErr("postgres.classRepo.Create", err)
}

func (r *classRepo) ListByLecturer(ctx context.Context, lecturerID string) ([]attendance.Class, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, code, name, lecturer_id FROM classes WHERE lecturer_id = $1 ORDER BY code
	`, lecturerID)
	if err != nil {
		return nil, mapErr("postgres.classRepo.ListByLecturer", err)
	}
	defer rows.Close()
	var out []attendance.Class
	for rows.Next() {
		var c attendance.Class
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type enrollmentRepo struct{ q dbtx }

func (r *enrollmentRepo) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2)
	`, classID, studentID).Scan(&exists)
	return exists, mapErr("postgres.enrollmentRepo.IsEnrolled", err)
}

func (r *enrollmentRepo) ListStudents(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT student_id FROM enrollments WHERE class_id = $1 ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, mapErr("postgres.enrollmentRepo.ListStudents", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *enrollmentRepo) Add(ctx context.Context, classID, studentID string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO enrollments (class_id, student_id) VALUES ($1, $2)
	`, classID, studentID)
	return mapErr("postgres.enrollmentRepo.Add", err)
}

func (r *enrollmentRepo) Remove(ctx context.Context, classID, studentID string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM enrollments WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	return mapErr("postgres.enrollmentRepo.Remove", err)
}

type sessionRepo struct{ q dbtx }

const sessionColumns = `id, class_id, session_date, start_time, duration_min, pin_enabled, pin_code, status, created_at`

func scanSession(row interface{ Scan(...any) error }) (*attendance.Session, error) {
	var s attendance.Session
	if err := row.Scan(&s.ID, &s.ClassID, &s.Date, &s.StartTime, &s.DurationMinutes, &s.PINEnabled, &s.PIN, &s.Status, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*attendance.Session, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("postgres.sessionRepo.Get", err)
	}
	return s, nil
}

func (r *sessionRepo) Create(ctx context.Context, s attendance.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, class_id, session_date, start_time, duration_min, pin_enabled, pin_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.ClassID, s.Date, s.StartTime, s.DurationMinutes, s.PINEnabled, s.PIN, string(s.Status), s.CreatedAt)
	return mapErr("postgres.sessionRepo.Create", err)
}

func (r *sessionRepo) UpdateStatus(ctx context.Context, id string, status attendance.SessionStatus) error {
	_, err := r.q.ExecContext(ctx, `UPDATE attendance_sessions SET status = $2 WHERE id = $1`, id, string(status))
	return mapErr("postgres.sessionRepo.UpdateStatus", err)
}

func (r *sessionRepo) List(ctx context.Context, f attendance.SessionFilter) ([]attendance.Session, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if f.Range.From != "" {
		args = append(args, f.Range.From)
		clauses = append(clauses, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if f.Range.To != "" {
		args = append(args, f.Range.To)
		clauses = append(clauses, fmt.Sprintf("session_date <= $%d", len(args)))
	}
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY session_date, start_time"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("postgres.sessionRepo.List", err)
	}
	defer rows.Close()
	var out []attendance.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type recordRepo struct{ q dbtx }

const recordColumns = `id, session_id, student_id, status, checkin_time, note`

func scanRecord(row interface{ Scan(...any) error }) (*attendance.Record, error) {
	var rec attendance.Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.CheckinTime, &rec.Note); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) Get(ctx context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	rec, err := scanRecord(r.q.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 AND student_id = $2
	`, key.SessionID, key.StudentID))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("postgres.recordRepo.Get", err)
	}
	return rec, nil
}

// Upsert relies on UNIQUE (session_id, student_id); nil checkin_time or note
// keep the stored values on conflict.
func (r *recordRepo) Upsert(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	out, err := scanRecord(r.q.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, status, checkin_time, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			checkin_time = COALESCE(EXCLUDED.checkin_time, attendance_records.checkin_time),
			note = COALESCE(EXCLUDED.note, attendance_records.note)
		RETURNING `+recordColumns+`
	`, rec.ID, rec.SessionID, rec.StudentID, string(rec.Status), rec.CheckinTime, rec.Note))
	if err != nil {
		return attendance.Record{}, mapErr("postgres.recordRepo.Upsert", err)
	}
	return *out, nil
}

func (r *recordRepo) Delete(ctx context.Context, key attendance.RecordKey) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM attendance_records WHERE session_id = $1 AND student_id = $2
	`, key.SessionID, key.StudentID)
	if err != nil {
		return false, mapErr("postgres.recordRepo.Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("postgres.recordRepo.Delete", err)
	}
	return n > 0, nil
}

func (r *recordRepo) ListBySessions(ctx context.Context, sessionIDs []string) ([]attendance.Record, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = ANY($1)
		ORDER BY session_id, student_id
	`, sessionIDs)
	if err != nil {
		return nil, mapErr("postgres.recordRepo.ListBySessions", err)
	}
	defer rows.Close()
	var out []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type requestRepo struct{ q dbtx }

const requestColumns = `id, student_id, session_id, request_type, reason, evidence_path, status, lecturer_comment, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*attendance.Request, error) {
	var req attendance.Request
	if err := row.Scan(&req.ID, &req.StudentID, &req.SessionID, &req.Type, &req.Reason, &req.EvidencePath,
		&req.Status, &req.LecturerComment, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepo) Get(ctx context.Context, id string) (*attendance.Request, error) {
	req, err := scanRequest(r.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM absence_requests WHERE id = $1`, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("postgres.requestRepo.Get", err)
	}
	return req, nil
}

func (r *requestRepo) Create(ctx context.Context, req attendance.Request) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO absence_requests (id, student_id, session_id, request_type, reason, evidence_path, status, lecturer_comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, req.ID, req.StudentID, req.SessionID, string(req.Type), req.Reason, req.EvidencePath,
		string(req.Status), req.LecturerComment, req.CreatedAt, req.UpdatedAt)
	return mapErr("postgres.requestRepo.Create", err)
}

func (r *requestRepo) Update(ctx context.Context, req attendance.Request) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE absence_requests SET status = $2, lecturer_comment = $3, updated_at = $4 WHERE id = $1
	`, req.ID, string(req.Status), req.LecturerComment, req.UpdatedAt)
	return mapErr("postgres.requestRepo.Update", err)
}

func (r *requestRepo) List(ctx context.Context, f attendance.RequestFilter) ([]attendance.Request, error) {
	var (
		clauses []string
		args    []any
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.SessionIDs != nil {
		args = append(args, f.SessionIDs)
		clauses = append(clauses, fmt.Sprintf("session_id = ANY($%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM absence_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("postgres.requestRepo.List", err)
	}
	defer rows.Close()
	var out []attendance.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

type warningRepo struct{ q dbtx }

const warningColumns = `id, student_id, class_id, message, created_at, seen`

func scanWarning(row interface{ Scan(...any) error }) (*attendance.Warning, error) {
	var w attendance.Warning
	if err := row.Scan(&w.ID, &w.StudentID, &w.ClassID, &w.Message, &w.CreatedAt, &w.Seen); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *warningRepo) Get(ctx context.Context, id string) (*attendance.Warning, error) {
	w, err := scanWarning(r.q.QueryRowContext(ctx, `SELECT `+warningColumns+` FROM warnings WHERE id = $1`, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("postgres.warningRepo.Get", err)
	}
	return w, nil
}

func (r *warningRepo) Create(ctx context.Context, w attendance.Warning) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO warnings (id, student_id, class_id, message, created_at, seen)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (student_id, class_id, message) DO NOTHING
	`, w.ID, w.StudentID, w.ClassID, w.Message, w.CreatedAt)
	if err != nil {
		return false, mapErr("postgres.warningRepo.Create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("postgres.warningRepo.Create", err)
	}
	return n > 0, nil
}

func (r *warningRepo) List(ctx context.Context, f attendance.WarningFilter) ([]attendance.Warning, error) {
	var (
		clauses []string
		args    []any
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if f.UnseenOnly {
		clauses = append(clauses, "seen = FALSE")
	}
	query := `SELECT ` + warningColumns + ` FROM warnings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("postgres.warningRepo.List", err)
	}
	defer rows.Close()
	var out []attendance.Warning
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *warningRepo) MarkSeen(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE warnings SET seen = TRUE WHERE id = $1`, id)
	return mapErr("postgres.warningRepo.MarkSeen", err)
}
