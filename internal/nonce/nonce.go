// Package nonce issues one-time form tokens bound to a single action.
package nonce

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid or expired nonce")

type entry struct {
	action  string
	expires time.Time
}

// Store keeps issued tokens in memory until they are consumed or expire.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]entry
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{ttl: ttl, now: time.Now, tokens: make(map[string]entry)}
}

// Issue returns a fresh token valid for action.
func (s *Store) Issue(action string) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.tokens[token] = entry{action: action, expires: s.now().Add(s.ttl)}
	return token
}

// Consume validates token for action and invalidates it. A token presented
// for a different action is rejected and stays unused.
func (s *Store) Consume(action, token string) error {
	if token == "" {
		return ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok || e.action != action {
		return ErrInvalid
	}
	delete(s.tokens, token)
	if s.now().After(e.expires) {
		return ErrInvalid
	}
	return nil
}

// Len returns the number of live tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.tokens)
}

func (s *Store) sweepLocked() {
	now := s.now()
	for k, e := range s.tokens {
		if now.After(e.expires) {
			delete(s.tokens, k)
		}
	}
}
