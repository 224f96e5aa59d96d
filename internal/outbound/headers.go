// Package outbound stamps the correlation, session and identity headers of
// the active request onto every call made to a downstream service.
package outbound

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const (
	// DefaultSourceService identifies this application to downstream services.
	DefaultSourceService = "petstoreapp"

	unknownVersion = "unknown"
	jsonMediaType  = "application/json"
	noCache        = "no-cache"
)

// ErrNoRequestContext is returned when an outbound call is attempted outside
// of a RequestContext. Identifiers are never invented at call time; work that
// is not driven by an inbound request must create a detached context.
var ErrNoRequestContext = errors.New("outbound call without request context")

// Identity describes this application in the service identity headers.
type Identity struct {
	Service   string
	Version   string
	Container string
}

// BuildHeaders returns the headers of an outbound call made on behalf of the
// request described by s to the target service. It has no side effects.
func BuildHeaders(s requestctx.Snapshot, target string, id Identity, now time.Time) (http.Header, error) {
	if s.RequestID == "" {
		return nil, ErrNoRequestContext
	}

	h := s.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}

	h.Set(requestctx.HeaderContentType, jsonMediaType)
	h.Set(requestctx.HeaderAccept, jsonMediaType)
	h.Set(requestctx.HeaderCacheControl, noCache)

	if s.SessionID != "" {
		h.Set(requestctx.HeaderSessionID, s.SessionID)
		// Some downstream services only look up the lowercase spelling.
		h[requestctx.HeaderSessionIDLowercase] = []string{s.SessionID}
	}
	setIfKnown(h, requestctx.HeaderHTTPSessionID, s.HTTPSessionID)

	h.Set(requestctx.HeaderRequestID, s.RequestID)
	h.Set(requestctx.HeaderCorrelationID, s.RequestID)
	setIfKnown(h, requestctx.HeaderTraceID, s.TraceID)
	setIfKnown(h, requestctx.HeaderParentSpanID, s.SpanID)

	setIfKnown(h, requestctx.HeaderUserName, s.UserName)
	setIfKnown(h, requestctx.HeaderUserEmail, s.UserEmail)
	setIfKnown(h, requestctx.HeaderAuthType, s.AuthType)
	if s.UserResolved {
		h.Set(requestctx.HeaderAuthenticated, strconv.FormatBool(s.IsAuthenticated))
	}

	service := id.Service
	if service == "" {
		service = DefaultSourceService
	}
	version := id.Version
	if version == "" {
		version = unknownVersion
	}
	h.Set(requestctx.HeaderSourceService, service)
	h.Set(requestctx.HeaderSourceVersion, version)
	setIfKnown(h, requestctx.HeaderTargetService, target)
	setIfKnown(h, requestctx.HeaderSourceContainer, id.Container)

	setIfKnown(h, requestctx.HeaderRequestURI, s.RequestURI)
	setIfKnown(h, requestctx.HeaderRequestMethod, s.RequestMethod)
	h.Set(requestctx.HeaderRequestTimestamp, strconv.FormatInt(now.UnixMilli(), 10))

	return h, nil
}

func setIfKnown(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
