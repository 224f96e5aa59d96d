package outbound

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

var sendTime = time.UnixMilli(1700000000123)

func fullSnapshot() requestctx.Snapshot {
	return requestctx.Snapshot{
		RequestID:       "ab12cd34",
		TraceID:         "abc123",
		SpanID:          "span0000span0000",
		ParentSpanID:    "S1",
		SessionID:       "sess-1",
		HTTPSessionID:   "cookie-1",
		UserName:        "alex",
		UserEmail:       "alex@example.com",
		AuthType:        "OAuth2-ExternalID",
		IsAuthenticated: true,
		UserResolved:    true,
		RequestURI:      "/api/pets",
		RequestMethod:   http.MethodGet,
		Headers:         http.Header{"X-Tenant": []string{"blue", "green"}},
	}
}

func TestBuildHeaders(t *testing.T) {
	id := Identity{Service: "petstoreapp", Version: "1.2.3", Container: "web-7f9c"}

	h, err := BuildHeaders(fullSnapshot(), "pet-service", id, sendTime)
	require.NoError(t, err)

	expected := map[string]string{
		"Content-Type":        "application/json",
		"Accept":              "application/json",
		"Cache-Control":       "no-cache",
		"X-Session-ID":        "sess-1",
		"X-HTTP-Session-ID":   "cookie-1",
		"X-Request-ID":        "ab12cd34",
		"X-Correlation-ID":    "ab12cd34",
		"X-Trace-ID":          "abc123",
		"X-Parent-Span-ID":    "span0000span0000",
		"X-User-Name":         "alex",
		"X-User-Email":        "alex@example.com",
		"X-Auth-Type":         "OAuth2-ExternalID",
		"X-Authenticated":     "true",
		"X-Source-Service":    "petstoreapp",
		"X-Source-Version":    "1.2.3",
		"X-Source-Container":  "web-7f9c",
		"X-Target-Service":    "pet-service",
		"X-Request-URI":       "/api/pets",
		"X-Request-Method":    "GET",
		"X-Request-Timestamp": "1700000000123",
	}
	for k, v := range expected {
		require.Equal(t, v, h.Get(k), k)
	}

	require.Equal(t, []string{"sess-1"}, h["x-session-id"])
	require.Equal(t, []string{"blue", "green"}, h.Values("X-Tenant"))
}

func TestBuildHeadersOmitsUnknownValues(t *testing.T) {
	s := requestctx.Snapshot{RequestID: "ab12cd34"}

	h, err := BuildHeaders(s, "order-service", Identity{}, sendTime)
	require.NoError(t, err)

	for _, k := range []string{
		"X-Session-ID", "x-session-id", "X-HTTP-Session-ID", "X-Trace-ID", "X-Parent-Span-ID",
		"X-User-Name", "X-User-Email", "X-Auth-Type", "X-Authenticated", "X-Source-Container",
		"X-Request-URI", "X-Request-Method",
	} {
		_, present := h[http.CanonicalHeaderKey(k)]
		require.False(t, present, k)
	}
	_, present := h["x-session-id"]
	require.False(t, present)

	require.Equal(t, "petstoreapp", h.Get("X-Source-Service"))
	require.Equal(t, "unknown", h.Get("X-Source-Version"))
	require.Equal(t, "order-service", h.Get("X-Target-Service"))
}

func TestBuildHeadersAnonymousUser(t *testing.T) {
	s := requestctx.Snapshot{
		RequestID:    "ab12cd34",
		UserName:     "Guest",
		AuthType:     "Anonymous",
		UserResolved: true,
	}

	h, err := BuildHeaders(s, "pet-service", Identity{}, sendTime)
	require.NoError(t, err)

	require.Equal(t, "false", h.Get("X-Authenticated"))
	require.Equal(t, "Guest", h.Get("X-User-Name"))
	require.Empty(t, h.Values("X-User-Email"))
}

func TestBuildHeadersOverridesAccumulatedHeaders(t *testing.T) {
	s := fullSnapshot()
	s.Headers = http.Header{
		"X-Request-Id":  []string{"spoofed"},
		"Cache-Control": []string{"max-age=60"},
	}

	h, err := BuildHeaders(s, "pet-service", Identity{}, sendTime)
	require.NoError(t, err)

	require.Equal(t, []string{"ab12cd34"}, h.Values("X-Request-ID"))
	require.Equal(t, []string{"no-cache"}, h.Values("Cache-Control"))
}

func TestBuildHeadersRequiresRequestContext(t *testing.T) {
	h, err := BuildHeaders(requestctx.Snapshot{TraceID: "abc123"}, "pet-service", Identity{}, sendTime)

	require.ErrorIs(t, err, ErrNoRequestContext)
	require.Nil(t, h)
}

func TestBuildHeadersDoesNotMutateSnapshot(t *testing.T) {
	s := fullSnapshot()

	_, err := BuildHeaders(s, "pet-service", Identity{}, sendTime)
	require.NoError(t, err)

	require.Equal(t, http.Header{"X-Tenant": []string{"blue", "green"}}, s.Headers)
}
