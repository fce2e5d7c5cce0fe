package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy of the search engine. Request-shape problems surface before
// any backend call; per-backend failures are absorbed into the response
// unless every requested source failed.

// ValidationError rejects a malformed query (time range, limit, emptiness,
// stale cursor) before fan-out.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid search query: %s", e.Reason)
}

// InvalidFilterError rejects an attempt to filter on the reserved tenant
// field, which would shadow the injected tenant scope.
type InvalidFilterError struct {
	Field string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("filter on reserved field %q is not allowed", e.Field)
}

// UnauthenticatedError rejects a request that reached the engine without a
// tenant id from the auth layer.
type UnauthenticatedError struct{}

func (e *UnauthenticatedError) Error() string {
	return "missing tenant context"
}

// TotalFailureError is returned only when every requested source failed, so
// callers can distinguish "nothing matched" from "search unavailable".
type TotalFailureError struct {
	Failures []SourceFailure
}

func (e *TotalFailureError) Error() string {
	return fmt.Sprintf("all %d search backends failed", len(e.Failures))
}

// HTTPStatus maps an engine error to the status code the API layer responds
// with. Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		fe *InvalidFilterError
		ue *UnauthenticatedError
		te *TotalFailureError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusUnauthorized
	case errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
