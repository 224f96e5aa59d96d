package outbound

import (
	"context"
	"net/http"
	"time"

	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

// Propagator applies BuildHeaders to outgoing requests using the
// RequestContext found in the request's context.
type Propagator struct {
	identity Identity
	now      func() time.Time
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithClock overrides the time source of X-Request-Timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Propagator) {
		p.now = now
	}
}

// New returns a Propagator that announces itself as identity.
func New(identity Identity, opts ...Option) *Propagator {
	p := &Propagator{identity: identity, now: time.Now}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Headers returns the headers for a call to target on behalf of the request
// carried by ctx.
func (p *Propagator) Headers(ctx context.Context, target string) (http.Header, error) {
	rc, ok := requestctx.FromContext(ctx)
	if !ok {
		return nil, ErrNoRequestContext
	}

	return BuildHeaders(rc.Snapshot(), target, p.identity, p.now())
}

// Apply returns a copy of req carrying the propagated headers. Headers built
// by the propagator replace any value of the same name already on req.
func (p *Propagator) Apply(req *http.Request, target string) (*http.Request, error) {
	ctx := req.Context()

	h, err := p.Headers(ctx, target)
	if err != nil {
		return nil, err
	}

	out := req.Clone(ctx)
	for k, v := range h {
		out.Header[k] = v
	}

	log.WithContextFields(ctx, log.Fields{
		"method":         out.Method,
		"url":            out.URL.String(),
		"request_id":     h.Get(requestctx.HeaderRequestID),
		"trace_id":       h.Get(requestctx.HeaderTraceID),
		"target_service": target,
	}).Info("Outgoing request")

	return out, nil
}

type roundTripper struct {
	propagator *Propagator
	target     string
	next       http.RoundTripper
}

// RoundTripper returns a transport that applies p to every request sent to
// target before handing it to next.
func (p *Propagator) RoundTripper(target string, next http.RoundTripper) http.RoundTripper {
	return &roundTripper{propagator: p, target: target, next: next}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := rt.propagator.Apply(req, rt.target)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	return rt.next.RoundTrip(out)
}
