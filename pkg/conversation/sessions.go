package conversation

import (
	"context"
	"fmt"
	"sync"
)

// Sessions keeps live session states in memory and lets one turn at a time
// use each of them.
type Sessions struct {
	journal *Journal

	mu sync.Mutex
	m  map[string]*session
}

type session struct {
	sem   chan struct{}
	state *State
}

// NewSessions returns an empty set. With a journal, a session seen for the
// first time is loaded from it.
func NewSessions(j *Journal) *Sessions {
	return &Sessions{journal: j, m: map[string]*session{}}
}

// Key scopes a client-chosen session id to its owner.
func Key(userID int64, sessionID string) string {
	return fmt.Sprintf("u%d/%s", userID, sessionID)
}

// Acquire waits until no other turn holds the session, then returns its
// state and the function that releases it.
func (s *Sessions) Acquire(ctx context.Context, key string) (*State, func(), error) {
	s.mu.Lock()
	sess, ok := s.m[key]
	if !ok {
		sess = &session{sem: make(chan struct{}, 1)}
		s.m[key] = sess
	}
	s.mu.Unlock()

	select {
	case sess.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	release := func() { <-sess.sem }
	if sess.state == nil {
		st := New()
		if s.journal != nil {
			loaded, err := s.journal.Load(ctx, key)
			if err != nil {
				release()
				return nil, nil, err
			}
			st = loaded
		}
		sess.state = st
	}
	return sess.state, release, nil
}

// Len reports the number of sessions in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
