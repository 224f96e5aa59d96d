package requestctx

import (
	"context"
	"time"

	"gitlab.com/gitlab-org/labkit/correlation"
)

type contextKey struct{}

// WithContext returns a copy of ctx carrying rc. The request id is also
// installed as the labkit correlation id so that log lines and instrumented
// transports agree with the propagated headers.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, rc)

	return correlation.ContextWithCorrelation(ctx, rc.RequestID())
}

// FromContext returns the RequestContext carried by ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)

	return rc, ok && rc != nil
}

// NewDetached creates a RequestContext for work that is not driven by an
// inbound request, such as startup checks. A correlation id already present
// in ctx is reused as the request id.
func NewDetached(ctx context.Context, gen IDGenerator) (context.Context, *RequestContext) {
	if gen == nil {
		gen = DefaultGenerator
	}

	requestID := correlation.ExtractFromContext(ctx)
	if requestID == "" {
		requestID = gen.RequestID()
	}

	rc := New(Snapshot{
		RequestID: requestID,
		TraceID:   gen.TraceID(),
		SpanID:    gen.SpanID(),
		StartTime: time.Now(),
	})

	return WithContext(ctx, rc), rc
}
