// Package inbound establishes the correlation context of every inbound HTTP
// request and tears it down once the response has been produced.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const panicErrorType = "panic"

// Establisher creates a RequestContext for each inbound request, exposes it
// to the handler through the request context and finalizes it on every exit
// path.
type Establisher struct {
	ids        requestctx.IDGenerator
	now        func() time.Time
	onFinalize func(requestctx.Snapshot)
	forward    []string
}

// Option configures an Establisher.
type Option func(*Establisher)

// WithIDGenerator overrides how request, trace and span ids are generated.
func WithIDGenerator(gen requestctx.IDGenerator) Option {
	return func(e *Establisher) {
		e.ids = gen
	}
}

// WithClock overrides the time source used for timing.
func WithClock(now func() time.Time) Option {
	return func(e *Establisher) {
		e.now = now
	}
}

// WithFinalizeHook registers a function that observes the final state of
// every request after it has been frozen.
func WithFinalizeHook(fn func(requestctx.Snapshot)) Option {
	return func(e *Establisher) {
		e.onFinalize = fn
	}
}

// WithForwardedHeaders names inbound headers that are accumulated on the
// RequestContext and therefore sent on every outbound call.
func WithForwardedHeaders(names ...string) Option {
	return func(e *Establisher) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				e.forward = append(e.forward, http.CanonicalHeaderKey(name))
			}
		}
	}
}

// New builds an Establisher.
func New(opts ...Option) *Establisher {
	e := &Establisher{
		ids: requestctx.DefaultGenerator,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start resolves the identifiers of a new request, echoes them on the
// response and returns the RequestContext for it.
func (e *Establisher) Start(w http.ResponseWriter, r *http.Request) *requestctx.RequestContext {
	requestID := firstHeader(r.Header, requestctx.HeaderRequestID, requestctx.HeaderCorrelationID)
	if requestID == "" {
		requestID = e.ids.RequestID()
	}

	traceID := r.Header.Get(requestctx.HeaderTraceID)
	if traceID == "" {
		traceID = e.ids.TraceID()
	}

	parentSpanID := r.Header.Get(requestctx.HeaderSpanID)
	spanID := e.ids.SpanID()
	if spanID == parentSpanID {
		spanID = e.ids.SpanID()
	}

	rc := requestctx.New(requestctx.Snapshot{
		RequestID:     requestID,
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentSpanID,
		ClientIP:      ClientIP(r),
		UserAgent:     r.UserAgent(),
		Referer:       r.Referer(),
		RequestURI:    r.URL.Path,
		RequestMethod: r.Method,
		StartTime:     e.now(),
	})

	for _, name := range e.forward {
		for _, value := range r.Header.Values(name) {
			_ = rc.AddHeader(name, value)
		}
	}

	h := w.Header()
	h.Set(requestctx.HeaderRequestID, requestID)
	h.Set(requestctx.HeaderCorrelationID, requestID)
	h.Set(requestctx.HeaderTraceID, traceID)
	h.Set(requestctx.HeaderSpanID, spanID)
	if parentSpanID != "" {
		h.Set(requestctx.HeaderParentSpanID, parentSpanID)
	}

	return rc
}

// Finish records the outcome of a request and freezes its context.
func (e *Establisher) Finish(ctx context.Context, rc *requestctx.RequestContext, status int, err error) requestctx.Snapshot {
	if err != nil {
		_ = rc.RecordError(errorType(err), err.Error())
	}

	started := rc.Snapshot().StartTime
	final, finalizeErr := rc.Finalize(status, e.now().Sub(started))
	if finalizeErr != nil {
		return final
	}

	metrics.InboundRequestsTotal.WithLabelValues(strconv.Itoa(final.ResponseStatus), final.RequestMethod).Inc()
	metrics.InboundRequestDurationSeconds.WithLabelValues(final.RequestMethod).Observe(final.Duration.Seconds())

	logger := log.WithContextFields(ctx, logFields(final))
	if final.HasException() {
		logger.WithFields(log.Fields{
			"exception_type":    final.ExceptionType,
			"exception_message": final.ExceptionMessage,
		}).Error("Request completed with exception")
	} else {
		logger.Info("Request completed")
	}

	if e.onFinalize != nil {
		e.onFinalize(final)
	}

	return final
}

// Handler wraps next so that every request runs inside its own
// RequestContext. The context is finalized when next returns or panics.
func (e *Establisher) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.InboundRequestsInFlight.Inc()
		defer metrics.InboundRequestsInFlight.Dec()

		rc := e.Start(w, r)
		ctx := requestctx.WithContext(r.Context(), rc)
		sw := newResponseWriter(w, rc, rc.Snapshot().StartTime, e.now)

		defer func() {
			recovered := recover()
			if recovered == http.ErrAbortHandler {
				e.Finish(ctx, rc, sw.status, http.ErrAbortHandler)
				panic(recovered)
			}

			var err error
			if recovered != nil {
				err = panicError(recovered)
				if !sw.wroteHeader {
					sw.WriteHeader(http.StatusInternalServerError)
				}
			}

			if !sw.wroteHeader {
				sw.WriteHeader(http.StatusOK)
			}

			e.Finish(ctx, rc, sw.status, err)
		}()

		next.ServeHTTP(sw, r.WithContext(ctx))
	})
}

// RecordError attaches err to the RequestContext carried by ctx so that it is
// reported when the request completes. It is a no-op without a context.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if rc, ok := requestctx.FromContext(ctx); ok {
		_ = rc.RecordError(errorType(err), err.Error())
	}
}

type recoveredPanic struct {
	value any
}

func (p *recoveredPanic) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func panicError(value any) error {
	if err, ok := value.(error); ok {
		return &recoveredPanic{value: err}
	}

	return &recoveredPanic{value: value}
}

func errorType(err error) string {
	var p *recoveredPanic
	if errors.As(err, &p) {
		return panicErrorType
	}

	return fmt.Sprintf("%T", err)
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}

	return ""
}

func logFields(s requestctx.Snapshot) log.Fields {
	fields := log.Fields{
		"request_id":  s.RequestID,
		"trace_id":    s.TraceID,
		"span_id":     s.SpanID,
		"method":      s.RequestMethod,
		"uri":         s.RequestURI,
		"status":      s.ResponseStatus,
		"duration_ms": s.Duration.Milliseconds(),
		"client_ip":   s.ClientIP,
	}

	optional := map[string]string{
		"parent_span_id": s.ParentSpanID,
		"user_agent":     s.UserAgent,
		"referer":        s.Referer,
		"session_id":     s.SessionID,
		"user_name":      s.UserName,
		"auth_type":      s.AuthType,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}

	return fields
}
