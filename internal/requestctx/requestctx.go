// Package requestctx holds the per-request correlation record shared by the
// inbound establisher, the session layer and the outbound propagator.
package requestctx

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrFinalized is returned when a finalized RequestContext is modified.
var ErrFinalized = errors.New("request context is finalized")

// User holds the facts produced by session and authentication resolution.
type User struct {
	Name          string
	Email         string
	AuthType      string
	Authenticated bool
}

// Snapshot is a point-in-time copy of a RequestContext. It shares no state
// with the context it was taken from.
type Snapshot struct {
	RequestID    string
	TraceID      string
	SpanID       string
	ParentSpanID string

	SessionID     string
	HTTPSessionID string

	UserName        string
	UserEmail       string
	AuthType        string
	IsAuthenticated bool
	// UserResolved reports whether authentication resolution has run.
	UserResolved bool

	ClientIP      string
	UserAgent     string
	Referer       string
	RequestURI    string
	RequestMethod string

	StartTime      time.Time
	Duration       time.Duration
	ResponseStatus int

	ExceptionType    string
	ExceptionMessage string

	// Headers are request-scoped headers accumulated by business code and
	// copied onto every outbound call.
	Headers http.Header

	Finalized bool
}

// HasException reports whether the request recorded a failure.
func (s Snapshot) HasException() bool {
	return s.ExceptionType != ""
}

// RequestContext is the mutable correlation record of one inbound request.
// It is safe for concurrent use and becomes read-only once finalized.
type RequestContext struct {
	mu sync.RWMutex
	s  Snapshot
}

// New creates a RequestContext seeded with the given values.
func New(initial Snapshot) *RequestContext {
	initial.Headers = initial.Headers.Clone()
	if initial.Headers == nil {
		initial.Headers = http.Header{}
	}
	initial.Finalized = false

	return &RequestContext{s: initial}
}

// RequestID returns the request identifier.
func (rc *RequestContext) RequestID() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return rc.s.RequestID
}

// TraceID returns the trace identifier.
func (rc *RequestContext) TraceID() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return rc.s.TraceID
}

// SpanID returns the span identifier of this hop.
func (rc *RequestContext) SpanID() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return rc.s.SpanID
}

// Snapshot returns a copy of the current state.
func (rc *RequestContext) Snapshot() Snapshot {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	s := rc.s
	s.Headers = rc.s.Headers.Clone()

	return s
}

// SetSession records the application session id and the id of the HTTP
// session it was read from. Empty values leave the current value untouched.
func (rc *RequestContext) SetSession(sessionID, httpSessionID string) error {
	return rc.update(func(s *Snapshot) {
		if sessionID != "" {
			s.SessionID = sessionID
		}
		if httpSessionID != "" {
			s.HTTPSessionID = httpSessionID
		}
	})
}

// SetUser records the outcome of authentication resolution.
func (rc *RequestContext) SetUser(u User) error {
	return rc.update(func(s *Snapshot) {
		s.UserName = u.Name
		s.UserEmail = u.Email
		s.AuthType = u.AuthType
		s.IsAuthenticated = u.Authenticated
		s.UserResolved = true
	})
}

// AddHeader appends a request-scoped header that is forwarded on every
// outbound call made on behalf of this request.
func (rc *RequestContext) AddHeader(key, value string) error {
	return rc.update(func(s *Snapshot) {
		s.Headers.Add(key, value)
	})
}

// RecordError records the kind and message of a request failure. Only the
// first recorded error is kept.
func (rc *RequestContext) RecordError(kind, message string) error {
	return rc.update(func(s *Snapshot) {
		if s.ExceptionType != "" {
			return
		}
		s.ExceptionType = kind
		s.ExceptionMessage = message
	})
}

// Finalize records the response status and duration and freezes the
// context. It returns the final state. Finalizing twice returns ErrFinalized
// along with the state recorded by the first call.
func (rc *RequestContext) Finalize(status int, duration time.Duration) (Snapshot, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.s.Finalized {
		s := rc.s
		s.Headers = rc.s.Headers.Clone()
		return s, ErrFinalized
	}

	rc.s.ResponseStatus = status
	rc.s.Duration = duration
	rc.s.Finalized = true

	s := rc.s
	s.Headers = rc.s.Headers.Clone()

	return s, nil
}

func (rc *RequestContext) update(fn func(*Snapshot)) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.s.Finalized {
		return ErrFinalized
	}

	fn(&rc.s)

	return nil
}
