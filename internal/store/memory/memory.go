// Package memory is an in-process attendance store. It backs tests and the
// STORE_BACKEND=memory development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"classattend/internal/attendance"
)

type enrollmentKey struct {
	classID   string
	studentID string
}

type sessionSlot struct {
	classID string
	date    string
	start   string
}

type warningKey struct {
	studentID string
	classID   string
	message   string
}

type state struct {
	users       map[string]attendance.User
	classes     map[string]attendance.Class
	enrollments map[enrollmentKey]struct{}
	sessions    map[string]attendance.Session
	records     map[attendance.RecordKey]attendance.Record
	requests    map[string]attendance.Request
	warnings    map[string]attendance.Warning

	// undo restores the maps to the start of the running unit of work.
	undo []func()
}

func newState() *state {
	return &state{
		users:       make(map[string]attendance.User),
		classes:     make(map[string]attendance.Class),
		enrollments: make(map[enrollmentKey]struct{}),
		sessions:    make(map[string]attendance.Session),
		records:     make(map[attendance.RecordKey]attendance.Record),
		requests:    make(map[string]attendance.Request),
		warnings:    make(map[string]attendance.Warning),
	}
}

// put sets m[k] and journals the previous value.
func put[K comparable, V any](st *state, m map[K]V, k K, v V) {
	st.undo = append(st.undo, journalEntry(m, k))
	m[k] = v
}

// del removes m[k] and journals the previous value.
func del[K comparable, V any](st *state, m map[K]V, k K) {
	st.undo = append(st.undo, journalEntry(m, k))
	delete(m, k)
}

func journalEntry[K comparable, V any](m map[K]V, k K) func() {
	prev, had := m[k]
	return func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}

func (s *state) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

// Store keeps all entities in maps guarded by one mutex. Units of work write
// in place and journal each overwritten entry; a failed unit replays the
// journal backwards.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Atomic implements attendance.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r attendance.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			s.state.rollback()
		}
	}()
	if err := fn(ctx, repos(s.state)); err != nil {
		return err
	}
	s.state.undo = nil
	committed = true
	return nil
}

// Ping reports the store as always reachable.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func repos(st *state) attendance.Repos {
	return attendance.Repos{
		Users:       users{st},
		Classes:     classes{st},
		Enrollments: enrollments{st},
		Sessions:    sessions{st},
		Records:     records{st},
		Requests:    requests{st},
		Warnings:    warnings{st},
	}
}

type users struct{ st *state }

func (r users) Get(_ context.Context, id string) (*attendance.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r users) GetByUsername(_ context.Context, username string) (*attendance.User, error) {
	for _, u := range r.st.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r users) Create(_ context.Context, u attendance.User) error {
	if _, ok := r.st.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s exists", attendance.ErrConflict, u.ID)
	}
	for _, existing := range r.st.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: username %s is taken", attendance.ErrConflict, u.Username)
		}
	}
	put(r.st, r.st.users, u.ID, u)
	return nil
}

func (r users) UpdateLoginState(_ context.Context, u attendance.User) error {
	existing, ok := r.st.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %s", attendance.ErrNotFound, u.ID)
	}
	existing.FailedAttempts = u.FailedAttempts
	existing.LockedUntil = u.LockedUntil
	put(r.st, r.st.users, u.ID, existing)
	return nil
}

type classes struct{ st *state }

func (r classes) Get(_ context.Context, id string) (*attendance.Class, error) {
	c, ok := r.st.classes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r classes) Create(_ context.Context, c attendance.Class) error {
	for _, existing := range r.st.classes {
		if existing.Code == c.Code {
			return fmt.Errorf("%w: class code %s is taken", attendance.ErrConflict, c.Code)
		}
	}
	put(r.st, r.st.classes, c.ID, c)
	return nil
}

func (r classes) ListByLecturer(_ context.Context, lecturerID string) ([]attendance.Class, error) {
	var out []attendance.Class
	for _, c := range r.st.classes {
		if c.LecturerID == lecturerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type enrollments struct{ st *state }

func (r enrollments) IsEnrolled(_ context.Context, classID, studentID string) (bool, error) {
	_, ok := r.st.enrollments[enrollmentKey{classID, studentID}]
	return ok, nil
}

func (r enrollments) ListStudents(_ context.Context, classID string) ([]string, error) {
	var out []string
	for k := range r.st.enrollments {
		if k.classID == classID {
			out = append(out, k.studentID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r enrollments) Add(_ context.Context, classID, studentID string) error {
	k := enrollmentKey{classID, studentID}
	if _, ok := r.st.enrollments[k]; ok {
		return fmt.Errorf("%w: student %s already enrolled in class %s", attendance.ErrConflict, studentID, classID)
	}
	put(r.st, r.st.enrollments, k, struct{}{})
	return nil
}

func (r enrollments) Remove(_ context.Context, classID, studentID string) error {
	del(r.st, r.st.enrollments, enrollmentKey{classID, studentID})
	return nil
}

type sessions struct{ st *state }

func (r sessions) Get(_ context.Context, id string) (*attendance.Session, error) {
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r sessions) Create(_ context.Context, s attendance.Session) error {
	slot := sessionSlot{s.ClassID, s.Date, s.StartTime}
	for _, existing := range r.st.sessions {
		if (sessionSlot{existing.ClassID, existing.Date, existing.StartTime}) == slot {
			return fmt.Errorf("%w: class %s already has a session on %s at %s", attendance.ErrConflict, s.ClassID, s.Date, s.StartTime)
		}
	}
	put(r.st, r.st.sessions, s.ID, s)
	return nil
}

func (r sessions) UpdateStatus(_ context.Context, id string, status attendance.SessionStatus) error {
	s, ok := r.st.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", attendance.ErrNotFound, id)
	}
	s.Status = status
	put(r.st, r.st.sessions, id, s)
	return nil
}

func (r sessions) List(_ context.Context, f attendance.SessionFilter) ([]attendance.Session, error) {
	var out []attendance.Session
	for _, s := range r.st.sessions {
		if f.ClassID != "" && s.ClassID != f.ClassID {
			continue
		}
		if !f.Range.Contains(s.Date) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

type records struct{ st *state }

func (r records) Get(_ context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	rec, ok := r.st.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r records) Upsert(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	key := rec.Key()
	existing, ok := r.st.records[key]
	if !ok {
		put(r.st, r.st.records, key, rec)
		return rec, nil
	}
	existing.Status = rec.Status
	if rec.CheckinTime != nil {
		existing.CheckinTime = rec.CheckinTime
	}
	if rec.Note != nil {
		existing.Note = rec.Note
	}
	put(r.st, r.st.records, key, existing)
	return existing, nil
}

func (r records) Delete(_ context.Context, key attendance.RecordKey) (bool, error) {
	if _, ok := r.st.records[key]; !ok {
		return false, nil
	}
	del(r.st, r.st.records, key)
	return true, nil
}

func (r records) ListBySessions(_ context.Context, sessionIDs []string) ([]attendance.Record, error) {
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	var out []attendance.Record
	for _, rec := range r.st.records {
		if want[rec.SessionID] {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

type requests struct{ st *state }

func (r requests) Get(_ context.Context, id string) (*attendance.Request, error) {
	req, ok := r.st.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r requests) Create(_ context.Context, req attendance.Request) error {
	if _, ok := r.st.requests[req.ID]; ok {
		return fmt.Errorf("%w: request %s exists", attendance.ErrConflict, req.ID)
	}
	put(r.st, r.st.requests, req.ID, req)
	return nil
}

func (r requests) Update(_ context.Context, req attendance.Request) error {
	if _, ok := r.st.requests[req.ID]; !ok {
		return fmt.Errorf("%w: request %s", attendance.ErrNotFound, req.ID)
	}
	put(r.st, r.st.requests, req.ID, req)
	return nil
}

func (r requests) List(_ context.Context, f attendance.RequestFilter) ([]attendance.Request, error) {
	var sessionSet map[string]bool
	if f.SessionIDs != nil {
		sessionSet = make(map[string]bool, len(f.SessionIDs))
		for _, id := range f.SessionIDs {
			sessionSet[id] = true
		}
	}
	var out []attendance.Request
	for _, req := range r.st.requests {
		if f.StudentID != "" && req.StudentID != f.StudentID {
			continue
		}
		if sessionSet != nil && !sessionSet[req.SessionID] {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type warnings struct{ st *state }

func (r warnings) Get(_ context.Context, id string) (*attendance.Warning, error) {
	w, ok := r.st.warnings[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r warnings) Create(_ context.Context, w attendance.Warning) (bool, error) {
	k := warningKey{w.StudentID, w.ClassID, w.Message}
	for _, existing := range r.st.warnings {
		if (warningKey{existing.StudentID, existing.ClassID, existing.Message}) == k {
			return false, nil
		}
	}
	put(r.st, r.st.warnings, w.ID, w)
	return true, nil
}

func (r warnings) List(_ context.Context, f attendance.WarningFilter) ([]attendance.Warning, error) {
	var out []attendance.Warning
	for _, w := range r.st.warnings {
		if f.StudentID != "" && w.StudentID != f.StudentID {
			continue
		}
		if f.ClassID != "" && w.ClassID != f.ClassID {
			continue
		}
		if f.UnseenOnly && w.Seen {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r warnings) MarkSeen(_ context.Context, id string) error {
	w, ok := r.st.warnings[id]
	if !ok {
		return fmt.Errorf("%w: warning %s", attendance.ErrNotFound, id)
	}
	w.Seen = true
	put(r.st, r.st.warnings, id, w)
	return nil
}

// Count returns the number of stored ledger records, for invariant checks.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.records)
}
