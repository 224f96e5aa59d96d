// Package session keeps track of browser sessions and resolves the user
// behind each inbound request.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSessions bounds the store when no size is configured.
const DefaultMaxSessions = 10000

// Session is a live browser session.
type Session struct {
	ID      string
	Created time.Time
}

// Store holds the most recently used sessions. The oldest session is evicted
// once the store is full.
type Store struct {
	sessions *lru.Cache[string, *Session]
	now      func() time.Time
}

// NewStore creates a Store holding at most size sessions.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		return nil, errors.New("session store size must be positive")
	}

	sessions, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, err
	}

	return &Store{sessions: sessions, now: time.Now}, nil
}

// Get returns the session with the given id and marks it as recently used.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	return s.sessions.Get(id)
}

// Create starts a new session.
func (s *Store) Create() *Session {
	session := &Session{ID: uuid.NewString(), Created: s.now()}
	s.sessions.Add(session.ID, session)

	return session
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
