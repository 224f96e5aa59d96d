package inbound

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

// responseWriter stamps the response correlation headers right before the
// header block is flushed, which is the last moment they can still be set.
type responseWriter struct {
	http.ResponseWriter

	rc      *requestctx.RequestContext
	started time.Time
	now     func() time.Time

	status      int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter, rc *requestctx.RequestContext, started time.Time, now func() time.Time) *responseWriter {
	return &responseWriter{ResponseWriter: w, rc: rc, started: started, now: now, status: http.StatusOK}
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}

	w.status = status
	w.wroteHeader = true
	w.stampHeaders()

	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *responseWriter) stampHeaders() {
	h := w.ResponseWriter.Header()

	h.Set(requestctx.HeaderResponseTraceID, w.rc.TraceID())
	h.Set(requestctx.HeaderResponseSpanID, w.rc.SpanID())
	h.Set(requestctx.HeaderResponseRequestID, w.rc.RequestID())
	h.Set(requestctx.HeaderRequestDuration, strconv.FormatInt(w.now().Sub(w.started).Milliseconds(), 10))
}
