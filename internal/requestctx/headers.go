package requestctx

// Correlation headers accepted on inbound requests and emitted on responses
// and outbound calls. Names are matched case-insensitively.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTraceID       = "X-Trace-ID"
	HeaderSpanID        = "X-Span-ID"
	HeaderParentSpanID  = "X-Parent-Span-ID"

	HeaderSessionID          = "X-Session-ID"
	HeaderSessionIDLowercase = "x-session-id"
	HeaderHTTPSessionID      = "X-HTTP-Session-ID"

	HeaderSourceService   = "X-Source-Service"
	HeaderSourceVersion   = "X-Source-Version"
	HeaderSourceContainer = "X-Source-Container"
	HeaderTargetService   = "X-Target-Service"

	HeaderUserName      = "X-User-Name"
	HeaderUserEmail     = "X-User-Email"
	HeaderAuthType      = "X-Auth-Type"
	HeaderAuthenticated = "X-Authenticated"

	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderRequestURI       = "X-Request-URI"
	HeaderRequestMethod    = "X-Request-Method"
	HeaderRequestDuration  = "X-Request-Duration"

	HeaderResponseTraceID   = "X-Response-Trace-ID"
	HeaderResponseSpanID    = "X-Response-Span-ID"
	HeaderResponseRequestID = "X-Response-Request-ID"

	HeaderCacheControl = "Cache-Control"
	HeaderContentType  = "Content-Type"
	HeaderAccept       = "Accept"
)

// Client address headers in resolution order.
var ClientIPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_X_FORWARDED_FOR",
}
