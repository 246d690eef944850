package attendance

import "context"

// Lookups return (nil, nil) when the entity does not exist. Create methods
// return an error wrapping ErrConflict on uniqueness violations.

// UserRepository stores accounts.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u User) error
	UpdateLoginState(ctx context.Context, u User) error
}

// ClassRepository stores classes.
type ClassRepository interface {
	Get(ctx context.Context, id string) (*Class, error)
	Create(ctx context.Context, c Class) error
	ListByLecturer(ctx context.Context, lecturerID string) ([]Class, error)
}

// EnrollmentRepository is the read side of class membership plus the
// administrative writes.
type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
	ListStudents(ctx context.Context, classID string) ([]string, error)
	Add(ctx context.Context, classID, studentID string) error
	Remove(ctx context.Context, classID, studentID string) error
}

// SessionFilter selects sessions of a class by inclusive date range.
type SessionFilter struct {
	ClassID string
	Range   DateRange
}

// SessionRepository stores sessions. List returns sessions ordered by date
// and start time.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s Session) error
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	List(ctx context.Context, f SessionFilter) ([]Session, error)
}

// RecordRepository is the attendance ledger. Upsert inserts rec when its key
// is free; otherwise it sets Status and overwrites CheckinTime and Note only
// when they are non-nil. It returns the stored record.
type RecordRepository interface {
	Get(ctx context.Context, key RecordKey) (*Record, error)
	Upsert(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, key RecordKey) (bool, error)
	ListBySessions(ctx context.Context, sessionIDs []string) ([]Record, error)
}

// RequestFilter selects absence requests. Empty fields do not filter.
type RequestFilter struct {
	StudentID  string
	SessionIDs []string
	Status     RequestStatus
}

// RequestRepository stores absence requests. List returns newest first.
type RequestRepository interface {
	Get(ctx context.Context, id string) (*Request, error)
	Create(ctx context.Context, r Request) error
	Update(ctx context.Context, r Request) error
	List(ctx context.Context, f RequestFilter) ([]Request, error)
}

// WarningFilter selects warnings. Empty fields do not filter.
type WarningFilter struct {
	StudentID  string
	ClassID    string
	UnseenOnly bool
}

// WarningRepository stores warnings. Create reports false when an identical
// (student, class, message) warning already exists.
type WarningRepository interface {
	Get(ctx context.Context, id string) (*Warning, error)
	Create(ctx context.Context, w Warning) (bool, error)
	List(ctx context.Context, f WarningFilter) ([]Warning, error)
	MarkSeen(ctx context.Context, id string) error
}

// Repos bundles the per-entity ports bound to one unit of work.
type Repos struct {
	Users       UserRepository
	Classes     ClassRepository
	Enrollments EnrollmentRepository
	Sessions    SessionRepository
	Records     RecordRepository
	Requests    RequestRepository
	Warnings    WarningRepository
}

// Store runs fn as one all-or-nothing unit of work. When fn returns an error
// none of its writes are visible afterwards.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
