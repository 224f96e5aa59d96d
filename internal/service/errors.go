// Package service implements the pet store operations on top of the
// downstream clients and decides how their failures reach the caller.
package service

import (
	"errors"
	"fmt"

	"github.com/chtrembl/petstoreapp/internal/clients/petstore"
)

// Domain names the service an Error originates from.
type Domain string

const (
	PetServiceError     Domain = "PetServiceError"
	ProductServiceError Domain = "ProductServiceError"
	OrderServiceError   Domain = "OrderServiceError"
)

// Error is a downstream failure attributed to a domain operation.
type Error struct {
	Domain Domain
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Domain, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the downstream HTTP status behind the error, or 0 when the
// call did not produce a response.
func (e *Error) Status() int {
	var translated *petstore.Error
	if errors.As(e.Err, &translated) {
		return translated.Status
	}

	return 0
}

func isDownstreamError(err error) bool {
	var translated *petstore.Error
	var transport *petstore.TransportError

	return errors.As(err, &translated) || errors.As(err, &transport)
}
