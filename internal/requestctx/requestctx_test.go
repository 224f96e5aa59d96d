package requestctx

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/correlation"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

func TestUUIDGenerator(t *testing.T) {
	gen := UUIDGenerator{}

	requestID := gen.RequestID()
	require.Len(t, requestID, 8)
	require.Regexp(t, hexPattern, requestID)

	traceID := gen.TraceID()
	require.Len(t, traceID, 32)
	require.Regexp(t, hexPattern, traceID)

	spanID := gen.SpanID()
	require.Len(t, spanID, 16)
	require.Regexp(t, hexPattern, spanID)

	require.NotEqual(t, spanID, gen.SpanID())
	require.NotEqual(t, traceID, gen.TraceID())
}

func TestSnapshotIsACopy(t *testing.T) {
	rc := New(Snapshot{RequestID: "req1"})
	require.NoError(t, rc.AddHeader("X-Tenant", "a"))

	snap := rc.Snapshot()
	snap.Headers.Set("X-Tenant", "b")
	snap.RequestID = "changed"

	require.Equal(t, "a", rc.Snapshot().Headers.Get("X-Tenant"))
	require.Equal(t, "req1", rc.RequestID())
}

func TestNewClonesInitialHeaders(t *testing.T) {
	initial := Snapshot{RequestID: "req1", Finalized: true}
	rc := New(initial)

	require.NoError(t, rc.AddHeader("X-Tenant", "a"))
	require.Nil(t, initial.Headers)
	require.False(t, rc.Snapshot().Finalized)
}

func TestSetUserAndSession(t *testing.T) {
	rc := New(Snapshot{RequestID: "req1"})

	require.False(t, rc.Snapshot().UserResolved)

	require.NoError(t, rc.SetSession("sess1", "http1"))
	require.NoError(t, rc.SetSession("", ""))
	require.NoError(t, rc.SetUser(User{Name: "alex", Email: "alex@example.com", AuthType: "OAuth2-ExternalID", Authenticated: true}))

	snap := rc.Snapshot()
	require.Equal(t, "sess1", snap.SessionID)
	require.Equal(t, "http1", snap.HTTPSessionID)
	require.Equal(t, "alex", snap.UserName)
	require.Equal(t, "alex@example.com", snap.UserEmail)
	require.Equal(t, "OAuth2-ExternalID", snap.AuthType)
	require.True(t, snap.IsAuthenticated)
	require.True(t, snap.UserResolved)
}

func TestRecordErrorKeepsFirst(t *testing.T) {
	rc := New(Snapshot{RequestID: "req1"})

	require.NoError(t, rc.RecordError("*errors.errorString", "first"))
	require.NoError(t, rc.RecordError("panic", "second"))

	snap := rc.Snapshot()
	require.True(t, snap.HasException())
	require.Equal(t, "*errors.errorString", snap.ExceptionType)
	require.Equal(t, "first", snap.ExceptionMessage)
}

func TestFinalizeFreezesContext(t *testing.T) {
	rc := New(Snapshot{RequestID: "req1", StartTime: time.Now()})

	final, err := rc.Finalize(201, 15*time.Millisecond)
	require.NoError(t, err)
	require.True(t, final.Finalized)
	require.Equal(t, 201, final.ResponseStatus)
	require.Equal(t, 15*time.Millisecond, final.Duration)

	require.ErrorIs(t, rc.SetUser(User{Name: "late"}), ErrFinalized)
	require.ErrorIs(t, rc.SetSession("late", ""), ErrFinalized)
	require.ErrorIs(t, rc.AddHeader("X-Late", "1"), ErrFinalized)
	require.ErrorIs(t, rc.RecordError("late", "late"), ErrFinalized)

	again, err := rc.Finalize(500, time.Second)
	require.ErrorIs(t, err, ErrFinalized)
	require.Equal(t, 201, again.ResponseStatus)
	require.Empty(t, rc.Snapshot().UserName)
}

func TestConcurrentUpdates(t *testing.T) {
	rc := New(Snapshot{RequestID: "req1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rc.AddHeader("X-Tenant", "a")
			_ = rc.Snapshot()
		}()
	}
	wg.Wait()

	require.Len(t, rc.Snapshot().Headers.Values("X-Tenant"), 50)
}

func TestWithContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	rc := New(Snapshot{RequestID: "req1"})
	ctx := WithContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Same(t, rc, got)
	require.Equal(t, "req1", correlation.ExtractFromContext(ctx))
}

func TestNewDetached(t *testing.T) {
	t.Run("generates fresh identifiers", func(t *testing.T) {
		ctx, rc := NewDetached(context.Background(), nil)

		got, ok := FromContext(ctx)
		require.True(t, ok)
		require.Same(t, rc, got)
		require.Len(t, rc.RequestID(), 8)
		require.Len(t, rc.TraceID(), 32)
		require.Len(t, rc.SpanID(), 16)
		require.Empty(t, rc.Snapshot().ParentSpanID)
	})

	t.Run("reuses the correlation id of the parent context", func(t *testing.T) {
		parent := correlation.ContextWithCorrelation(context.Background(), "startup1")

		_, rc := NewDetached(parent, UUIDGenerator{})

		require.Equal(t, "startup1", rc.RequestID())
	})
}
