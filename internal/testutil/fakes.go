// Package testutil provides in-memory stand-ins for the Postgres repositories
// and external services, for use in package tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"eventgate/internal/registration"
	"eventgate/internal/staff"
)

// Registrations is an in-memory registration store with the same
// uniqueness and conditional-update semantics as the Postgres repository.
type Registrations struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]registration.Registration
	now    func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

// NewRegistrations returns an empty store.
func NewRegistrations() *Registrations {
	return &Registrations{rows: map[int64]registration.Registration{}, now: time.Now}
}

func (s *Registrations) Insert(_ context.Context, reg *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, r := range s.rows {
		if r.Email == reg.Email {
			return registration.ErrDuplicateEmail
		}
	}
	s.nextID++
	reg.ID = s.nextID
	reg.Attended = false
	// distinct, increasing creation times keep listing order stable
	reg.CreatedAt = s.now().Add(time.Duration(s.nextID) * time.Millisecond)
	s.rows[reg.ID] = *reg
	return nil
}

func (s *Registrations) Get(_ context.Context, id int64) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Registrations) MarkAttended(_ context.Context, id int64, staffEmail string) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.rows[id]
	if !ok || r.Attended {
		return nil, nil
	}
	now := s.now()
	r.Attended = true
	r.AttendedAt = &now
	if staffEmail != "" {
		by := staffEmail
		r.CheckedInBy = &by
	}
	s.rows[id] = r
	return &r, nil
}

func (s *Registrations) List(_ context.Context, search string, limit, offset int) ([]registration.Registration, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}
	needle := strings.ToLower(search)
	var matched []registration.Registration
	for _, r := range s.rows {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.FirstName), needle) ||
			strings.Contains(strings.ToLower(r.LastName), needle) ||
			strings.Contains(strings.ToLower(r.Email), needle) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	out := []registration.Registration{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		out = append(out, matched[i])
	}
	return out, len(matched), nil
}

func (s *Registrations) Stats(_ context.Context) (registration.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return registration.Stats{}, s.Err
	}
	var st registration.Stats
	for _, r := range s.rows {
		st.TotalRegistrations++
		if r.Attended {
			st.TotalAttended++
		} else {
			st.TotalNotAttended++
		}
	}
	if st.TotalRegistrations > 0 {
		pct := float64(st.TotalAttended) * 100 / float64(st.TotalRegistrations)
		st.AttendancePercentage = float64(int64(pct*100+0.5)) / 100
	}
	return st, nil
}

// Count returns the number of stored rows.
func (s *Registrations) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Notifier records confirmations instead of sending them.
type Notifier struct {
	sync.Mutex
	Sent []registration.Registration
	Err  error
}

func (n *Notifier) SendConfirmation(_ context.Context, reg registration.Registration) error {
	n.Lock()
	defer n.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, reg)
	return nil
}

// Staff is an in-memory allow-list.
type Staff struct {
	mu      sync.Mutex
	nextID  int64
	members map[string]*staff.Member
	Err     error
}

// NewStaff returns an allow-list seeded with emails.
func NewStaff(emails ...string) *Staff {
	s := &Staff{members: map[string]*staff.Member{}}
	for _, e := range emails {
		s.Add(e, nil)
	}
	return s
}

// Add inserts a member and returns it.
func (s *Staff) Add(email string, name *string) staff.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := &staff.Member{ID: s.nextID, Email: strings.ToLower(email), Name: name}
	s.members[m.Email] = m
	return *m
}

func (s *Staff) FindByEmail(_ context.Context, email string) (*staff.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.members[email]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Staff) BackfillName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ID == id && m.Name == nil {
			n := name
			m.Name = &n
		}
	}
	return nil
}

// Verifier accepts credentials listed in Identities.
type Verifier struct {
	Identities map[string]staff.Identity
}

// ErrBadCredential is returned for credentials the Verifier does not know.
var ErrBadCredential = errors.New("bad credential")

func (v Verifier) Verify(_ context.Context, credential string) (staff.Identity, error) {
	id, ok := v.Identities[credential]
	if !ok {
		return staff.Identity{}, ErrBadCredential
	}
	return id, nil
}
