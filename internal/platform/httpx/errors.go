// Package httpx provides HTTP response utilities following RFC7807
// problem details.
package httpx

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// Sentinel errors the domain layer surfaces to HTTP callers.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflicting state")
	ErrUnavailable = errors.New("storage unavailable")
)

// RespondError maps domain errors to HTTP responses. Duplicate postings
// never reach here: the idempotency guard resolves them by returning the
// existing row, so callers observe success.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "retry the request")
	default:
		ProblemInstance(w, http.StatusInternalServerError, "Internal Error", "", "urn:uuid:"+uuid.NewString())
	}
}
