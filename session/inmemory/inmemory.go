package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ixlab/aibox/session"
)

// Store keeps sessions in process memory. Used for tests and local
// development; TTL expiry is checked lazily on read.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	retention time.Duration
}

func NewStore(retention time.Duration) *Store {
	return &Store{
		sessions:  make(map[string]*session.Session),
		retention: retention,
	}
}

var _ session.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, userID, sessionID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, session.ErrNotFound
	}
	if sess.ExpiresAt > 0 && sess.ExpiresAt < time.Now().Unix() {
		return nil, session.ErrNotFound
	}
	cp := *sess
	cp.History = append([]session.Turn(nil), sess.History...)
	return &cp, nil
}

func (s *Store) Put(_ context.Context, sess *session.Session) error {
	sess.Touch(s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	cp.History = append([]session.Turn(nil), sess.History...)
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *Store) List(_ context.Context, userID string) ([]session.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().Unix()
	var out []session.Summary
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if sess.ExpiresAt > 0 && sess.ExpiresAt < now {
			continue
		}
		out = append(out, sess.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) Delete(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return session.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
