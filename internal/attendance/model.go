package attendance

import (
	"fmt"
	"time"
)

// Status is the outcome of one student for one session.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
	StatusAbsent  Status = "Absent"
	StatusExcused Status = "Excused"
)

// Valid reports whether s is one of the four attendance statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return true
	default:
		return false
	}
}

// ParseStatus converts user input into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: invalid status %q (allowed: Absent, Excused, Late, Present)", ErrValidation, v)
	}
	return s, nil
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Valid reports whether s is a known session state.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionClosed:
		return true
	default:
		return false
	}
}

// RequestType is what the student asks a session outcome to be reviewed as.
type RequestType string

const (
	RequestAbsent RequestType = "Absent"
	RequestLate   RequestType = "Late"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestAbsent, RequestLate:
		return true
	default:
		return false
	}
}

// ParseRequestType converts user input into a RequestType.
func ParseRequestType(v string) (RequestType, error) {
	t := RequestType(v)
	if !t.Valid() {
		return "", fmt.Errorf("%w: invalid request type %q (allowed: Absent, Late)", ErrValidation, v)
	}
	return t, nil
}

// RequestStatus is the review state of an absence request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// Valid reports whether s is a known request state.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	default:
		return false
	}
}

// ParseRequestStatus converts user input into a RequestStatus.
func ParseRequestStatus(v string) (RequestStatus, error) {
	s := RequestStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: invalid request status %q", ErrValidation, v)
	}
	return s, nil
}

// Role is the kind of user acting on the engine.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleLecturer Role = "LECTURER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is an account known to the system.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	Role           Role       `json:"role"`
	PasswordHash   string     `json:"-"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// Class is a course taught by one lecturer.
type Class struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	LecturerID string `json:"lecturer_id"`
}

// Session is a single attendance-taking window of a class.
type Session struct {
	ID              string        `json:"id"`
	ClassID         string        `json:"class_id"`
	Date            string        `json:"date"`
	StartTime       string        `json:"start_time"`
	DurationMinutes int           `json:"duration_minutes"`
	PINEnabled      bool          `json:"pin_enabled"`
	PIN             *string       `json:"pin,omitempty"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RecordKey identifies the single ledger slot of a student in a session.
type RecordKey struct {
	SessionID string
	StudentID string
}

// Record is a stored ledger entry.
type Record struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	StudentID   string     `json:"student_id"`
	Status      Status     `json:"status"`
	CheckinTime *time.Time `json:"checkin_time,omitempty"`
	Note        *string    `json:"note,omitempty"`
}

// Key returns the ledger key of r.
func (r Record) Key() RecordKey {
	return RecordKey{SessionID: r.SessionID, StudentID: r.StudentID}
}

// Request is a student's appeal against a session outcome.
type Request struct {
	ID              string        `json:"id"`
	StudentID       string        `json:"student_id"`
	SessionID       string        `json:"session_id"`
	Type            RequestType   `json:"type"`
	Reason          string        `json:"reason"`
	EvidencePath    *string       `json:"evidence_path,omitempty"`
	Status          RequestStatus `json:"status"`
	LecturerComment *string       `json:"lecturer_comment,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Warning is a threshold notice for a student in a class.
type Warning struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Seen      bool      `json:"seen"`
}

// RosterEntry is one enrolled student with the effective status for a session.
type RosterEntry struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	Recorded  bool    `json:"recorded"`
	Note      *string `json:"note,omitempty"`
}

// StudentSummary holds aggregated counts for one student over a date range.
type StudentSummary struct {
	StudentID      string  `json:"student_id"`
	Name           string  `json:"name"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	Excused        int     `json:"excused"`
	TotalSessions  int     `json:"total_sessions"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// DetailRow is one session × student line of the reporting feed.
type DetailRow struct {
	SessionID   string     `json:"session_id"`
	ClassID     string     `json:"class_id"`
	Date        string     `json:"date"`
	StartTime   string     `json:"start_time"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Status      Status     `json:"status"`
	CheckinTime *time.Time `json:"checkin_time,omitempty"`
	Note        *string    `json:"note,omitempty"`
}
