package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

func captureServer(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()

	var captured http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, &captured
}

func TestRoundTripperPropagatesContext(t *testing.T) {
	server, captured := captureServer(t)

	p := New(Identity{Service: "petstoreapp", Version: "1.0.0"}, WithClock(func() time.Time { return sendTime }))
	client := &http.Client{Transport: p.RoundTripper("pet-service", http.DefaultTransport)}

	rc := requestctx.New(fullSnapshot())
	ctx := requestctx.WithContext(context.Background(), rc)

	for i := 0; i < 2; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/petstorepetservice/v2/pet/findByStatus", nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		require.Equal(t, "ab12cd34", captured.Get("X-Request-ID"))
		require.Equal(t, "abc123", captured.Get("X-Trace-ID"))
		require.Equal(t, "span0000span0000", captured.Get("X-Parent-Span-ID"))
		require.Equal(t, "pet-service", captured.Get("X-Target-Service"))
		require.Equal(t, "1700000000123", captured.Get("X-Request-Timestamp"))
		require.Equal(t, "sess-1", captured.Get("x-session-id"))
	}
}

func TestRoundTripperDoesNotModifyCallerRequest(t *testing.T) {
	server, _ := captureServer(t)

	p := New(Identity{})
	client := &http.Client{Transport: p.RoundTripper("pet-service", http.DefaultTransport)}

	ctx, _ := requestctx.NewDetached(context.Background(), nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, req.Header.Get("X-Request-ID"))
}

func TestRoundTripperRejectsMissingContext(t *testing.T) {
	server, captured := captureServer(t)

	p := New(Identity{})
	client := &http.Client{Transport: p.RoundTripper("pet-service", http.DefaultTransport)}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}

	require.ErrorIs(t, err, ErrNoRequestContext)
	require.Nil(t, *captured)
}

func TestDetachedContextPropagates(t *testing.T) {
	server, captured := captureServer(t)

	p := New(Identity{})
	client := &http.Client{Transport: p.RoundTripper("order-service", http.DefaultTransport)}

	ctx, rc := requestctx.NewDetached(context.Background(), nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, rc.RequestID(), captured.Get("X-Request-ID"))
	require.Equal(t, rc.TraceID(), captured.Get("X-Trace-ID"))
	require.Equal(t, rc.SpanID(), captured.Get("X-Parent-Span-ID"))
}

func TestApplyLogsOutgoingRequest(t *testing.T) {
	var buf bytes.Buffer
	closer, err := log.Initialize(log.WithWriter(&buf), log.WithFormatter("json"))
	require.NoError(t, err)
	defer closer.Close()

	p := New(Identity{})
	ctx := requestctx.WithContext(context.Background(), requestctx.New(fullSnapshot()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://order-service/petstoreorderservice/v2/store/order", nil)
	require.NoError(t, err)

	_, err = p.Apply(req, "order-service")
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "Outgoing request", entry["msg"])
	require.Equal(t, http.MethodPost, entry["method"])
	require.Equal(t, "http://order-service/petstoreorderservice/v2/store/order", entry["url"])
	require.Equal(t, "ab12cd34", entry["request_id"])
	require.Equal(t, "abc123", entry["trace_id"])
	require.Equal(t, "order-service", entry["target_service"])
}
