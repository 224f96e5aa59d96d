package session

import (
	"errors"
	"net/http"

	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "petstore_session"

// Middleware attaches the session and the user to the RequestContext of
// every request. It must run inside the inbound establisher.
type Middleware struct {
	store      *Store
	auth       *Authenticator
	cookieName string
}

// NewMiddleware creates the session middleware.
func NewMiddleware(store *Store, auth *Authenticator, cookieName string) *Middleware {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return &Middleware{store: store, auth: auth, cookieName: cookieName}
}

// Store returns the session store backing the middleware.
func (m *Middleware) Store() *Store {
	return m.store
}

// Handler resolves the session and the user before calling next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rc, ok := requestctx.FromContext(ctx)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		var session *Session
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			session, _ = m.store.Get(cookie.Value)
		}

		if session == nil {
			session = m.store.Create()
			metrics.SessionsCreatedTotal.Inc()

			http.SetCookie(w, &http.Cookie{
				Name:     m.cookieName,
				Value:    session.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		user, err := m.auth.Authenticate(r)
		if err != nil && !errors.Is(err, ErrNoToken) {
			metrics.AuthenticationFailuresTotal.Inc()
			log.WithContextFields(ctx, log.Fields{"session_id": session.ID}).WithError(err).Warn("Bearer token rejected")
		}

		// A stale cookie never leaks downstream as the HTTP session id.
		_ = rc.SetSession(session.ID, session.ID)
		_ = rc.SetUser(user)

		next.ServeHTTP(w, r)
	})
}
