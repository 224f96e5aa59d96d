package requestctx

import (
	"strings"

	"github.com/google/uuid"
)

const (
	requestIDLength = 8
	spanIDLength    = 16
)

// IDGenerator produces the identifiers assigned to a hop.
type IDGenerator interface {
	RequestID() string
	TraceID() string
	SpanID() string
}

// UUIDGenerator derives identifiers from random (version 4) UUIDs.
//
// Request ids are 8 characters long and are not collision resistant at
// scale. Nothing downstream relies on them being globally unique.
type UUIDGenerator struct{}

// RequestID returns the first 8 characters of a random UUID.
func (UUIDGenerator) RequestID() string {
	return uuid.NewString()[:requestIDLength]
}

// TraceID returns a random UUID as 32 hex characters.
func (UUIDGenerator) TraceID() string {
	return hexUUID()
}

// SpanID returns 16 hex characters of a random UUID.
func (UUIDGenerator) SpanID() string {
	return hexUUID()[:spanIDLength]
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DefaultGenerator is used when no generator is configured.
var DefaultGenerator IDGenerator = UUIDGenerator{}
