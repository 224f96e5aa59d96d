package petstore

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const (
	unknownValue = "unknown"
	maxErrorBody = 1 << 20
)

// Kind classifies a failed downstream response.
type Kind int

// Error kinds produced by Translate.
const (
	KindBadRequest Kind = iota
	KindNotFound
	KindRateLimited
	KindInternalError
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindRateLimited:
		return "RateLimited"
	case KindInternalError:
		return "InternalError"
	case KindUnavailable:
		return "Unavailable"
	default:
		return "BadRequest"
	}
}

// Class groups error kinds by the side that caused them.
type Class int

const (
	ClientError Class = iota
	ServerError
)

func (c Class) String() string {
	if c == ServerError {
		return "ServerError"
	}

	return "ClientError"
}

// Class returns whether k is a client or a server error.
func (k Kind) Class() Class {
	switch k {
	case KindInternalError, KindUnavailable:
		return ServerError
	default:
		return ClientError
	}
}

// Error is a downstream response with a failure status.
type Error struct {
	Kind   Kind
	Method string
	Status int

	// Correlation values reported by the downstream service, "unknown" when
	// the response did not carry them.
	RequestID       string
	SessionID       string
	ResponseTraceID string

	Body []byte
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// IsKind reports whether err is a translated downstream error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// TransportError is a downstream call that produced no response, such as a
// refused connection or an expired timeout.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("downstream service unreachable for %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because a timeout expired.
func (e *TransportError) Timeout() bool {
	return isTimeout(e.Err)
}

// Translate maps a failed downstream response to an Error. It never panics:
// values that cannot be extracted are replaced with "unknown" and an
// unreadable body becomes empty.
func Translate(status int, header http.Header, body io.Reader, method string) *Error {
	e := &Error{
		Kind:            kindFor(status),
		Method:          method,
		Status:          status,
		RequestID:       headerValue(header, requestctx.HeaderRequestID),
		SessionID:       headerValue(header, requestctx.HeaderSessionID),
		ResponseTraceID: headerValue(header, requestctx.HeaderResponseTraceID),
		Body:            readBody(body),
	}
	e.Msg = message(e)

	return e
}

func kindFor(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindInternalError
	case http.StatusServiceUnavailable:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}

func message(e *Error) string {
	switch e.Status {
	case http.StatusNotFound:
		return fmt.Sprintf("Resource not found for %s (status %d)", e.Method, e.Status)
	case http.StatusBadRequest:
		return fmt.Sprintf("Bad request for %s (status %d)", e.Method, e.Status)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("Rate limit exceeded for %s (status %d)", e.Method, e.Status)
	case http.StatusInternalServerError:
		return fmt.Sprintf("Internal server error for %s (status %d)", e.Method, e.Status)
	case http.StatusServiceUnavailable:
		return fmt.Sprintf("Service unavailable for %s (status %d)", e.Method, e.Status)
	default:
		return fmt.Sprintf("Service call failed for %s [RequestID: %s, SessionID: %s, TraceID: %s] with status %d",
			e.Method, e.RequestID, e.SessionID, e.ResponseTraceID, e.Status)
	}
}

func headerValue(h http.Header, name string) (value string) {
	defer func() {
		if recover() != nil {
			metrics.TranslationFailuresTotal.Inc()
			value = unknownValue
		}
	}()

	if v := h.Get(name); v != "" {
		return v
	}

	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
	}

	return unknownValue
}

func readBody(body io.Reader) (b []byte) {
	defer func() {
		if recover() != nil {
			metrics.TranslationFailuresTotal.Inc()
			b = []byte{}
		}
	}()

	if body == nil {
		return []byte{}
	}

	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		metrics.TranslationFailuresTotal.Inc()
		return []byte{}
	}

	return data
}
