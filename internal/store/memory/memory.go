// Package memory is an in-process store backend for development and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"halfmonth/internal/core"
	"halfmonth/internal/store"
)

type Store struct {
	mu       sync.Mutex
	periods  map[string]map[core.PeriodKey]core.Period
	users    map[string]store.User
	byEmail  map[string]string
	sessions map[string]store.Session
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		periods:  make(map[string]map[core.PeriodKey]core.Period),
		users:    make(map[string]store.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]store.Session),
	}
}

// NewFromSeedFile loads a seed of the form {"<userID>": <dump>, ...}.
func NewFromSeedFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var users map[string]json.RawMessage
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for userID, raw := range users {
		periods, _, err := store.DecodeDump(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", userID, err)
		}
		s.Seed(userID, periods...)
	}
	return s, nil
}

// Seed stores periods for a user, replacing any with the same key.
func (s *Store) Seed(userID string, periods ...core.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range periods {
		s.putLocked(userID, p)
	}
}

func (s *Store) putLocked(userID string, p core.Period) {
	m, ok := s.periods[userID]
	if !ok {
		m = make(map[core.PeriodKey]core.Period)
		s.periods[userID] = m
	}
	m[p.Key] = p.Clone()
}

func (s *Store) GetPeriod(_ context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[userID][key]
	if !ok {
		return core.Period{}, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) ListPeriods(_ context.Context, userID string) ([]core.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Period, 0, len(s.periods[userID]))
	for _, p := range s.periods[userID] {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Before(out[j].Key) })
	return out, nil
}

func (s *Store) PutPeriod(_ context.Context, userID string, p core.Period) error {
	if !p.Key.Valid() {
		return core.ErrInvalidPeriodKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(userID, p)
	return nil
}

func (s *Store) DeletePeriod(_ context.Context, userID string, key core.PeriodKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[userID][key]; !ok {
		return store.ErrNotFound
	}
	delete(s.periods[userID], key)
	return nil
}

// ListUserIDs returns registered users and any partition holding periods.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.users)+len(s.periods))
	for id := range s.users {
		seen[id] = struct{}{}
	}
	for id := range s.periods {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return store.ErrEmailExists
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateSession(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) SessionByToken(_ context.Context, token string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
