package petstore

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

type panickingReader struct{}

func (panickingReader) Read([]byte) (int, error) {
	panic("broken body")
}

func TestTranslate(t *testing.T) {
	testCases := []struct {
		status          int
		expectedKind    Kind
		expectedClass   Class
		expectedMessage string
	}{
		{
			status:          http.StatusNotFound,
			expectedKind:    KindNotFound,
			expectedClass:   ClientError,
			expectedMessage: "Resource not found for pet-service#FindPetsByStatus (status 404)",
		},
		{
			status:          http.StatusBadRequest,
			expectedKind:    KindBadRequest,
			expectedClass:   ClientError,
			expectedMessage: "Bad request for pet-service#FindPetsByStatus (status 400)",
		},
		{
			status:          http.StatusTooManyRequests,
			expectedKind:    KindRateLimited,
			expectedClass:   ClientError,
			expectedMessage: "Rate limit exceeded for pet-service#FindPetsByStatus (status 429)",
		},
		{
			status:          http.StatusInternalServerError,
			expectedKind:    KindInternalError,
			expectedClass:   ServerError,
			expectedMessage: "Internal server error for pet-service#FindPetsByStatus (status 500)",
		},
		{
			status:          http.StatusServiceUnavailable,
			expectedKind:    KindUnavailable,
			expectedClass:   ServerError,
			expectedMessage: "Service unavailable for pet-service#FindPetsByStatus (status 503)",
		},
		{
			status:        http.StatusTeapot,
			expectedKind:  KindBadRequest,
			expectedClass: ClientError,
			expectedMessage: "Service call failed for pet-service#FindPetsByStatus " +
				"[RequestID: ab12cd34, SessionID: sess-1, TraceID: abc123] with status 418",
		},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			header := http.Header{}
			header.Set("X-Request-ID", "ab12cd34")
			header.Set("X-Session-ID", "sess-1")
			header.Set("X-Response-Trace-ID", "abc123")

			err := Translate(tc.status, header, strings.NewReader(`{"message":"nope"}`), "pet-service#FindPetsByStatus")

			require.Equal(t, tc.expectedKind, err.Kind)
			require.Equal(t, tc.expectedClass, err.Kind.Class())
			require.Equal(t, tc.status, err.Status)
			require.Equal(t, "pet-service#FindPetsByStatus", err.Method)
			require.Equal(t, "ab12cd34", err.RequestID)
			require.Equal(t, "sess-1", err.SessionID)
			require.Equal(t, "abc123", err.ResponseTraceID)
			require.Equal(t, []byte(`{"message":"nope"}`), err.Body)
			require.EqualError(t, err, tc.expectedMessage)
			require.True(t, IsKind(err, tc.expectedKind))
		})
	}
}

func TestTranslateDefaultsToUnknown(t *testing.T) {
	testCases := []struct {
		desc   string
		header http.Header
		body   io.Reader
	}{
		{
			desc: "nil header and body",
		},
		{
			desc:   "header keys without values",
			header: http.Header{"X-Request-Id": nil, "X-Session-Id": {}, "X-Response-Trace-Id": {""}},
			body:   failingReader{},
		},
		{
			desc:   "body panics while reading",
			header: http.Header{},
			body:   panickingReader{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var err *Error
			require.NotPanics(t, func() {
				err = Translate(http.StatusTeapot, tc.header, tc.body, "order-service#GetOrder")
			})

			require.Equal(t, KindBadRequest, err.Kind)
			require.Equal(t, http.StatusTeapot, err.Status)
			require.Equal(t, "unknown", err.RequestID)
			require.Equal(t, "unknown", err.SessionID)
			require.Equal(t, "unknown", err.ResponseTraceID)
			require.NotNil(t, err.Body)
			require.Empty(t, err.Body)
			require.Contains(t, err.Error(), "order-service#GetOrder")
			require.Contains(t, err.Error(), "418")
		})
	}
}

func TestTranslateMatchesNonCanonicalHeaderKeys(t *testing.T) {
	header := http.Header{"X-REQUEST-ID": {"raw-key"}}

	err := Translate(http.StatusNotFound, header, nil, "pet-service#Health")

	require.Equal(t, "raw-key", err.RequestID)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Method: "pet-service#Health", Err: cause}

	require.ErrorIs(t, err, cause)
	require.False(t, err.Timeout())
	require.EqualError(t, err, "downstream service unreachable for pet-service#Health: connection refused")
	require.False(t, IsKind(err, KindBadRequest))
}
