// Package shared holds cross-cutting helpers used by the posting engine:
// idempotency keys, audit logging, and sentinel errors.
package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed event payload, rejected before
	// any store mutation.
	ErrValidation = errors.New("validation failed")
	// ErrAllocationInconsistency indicates an invariant violation detected
	// at read time. Fatal for the affected record; surfaced loudly, never
	// silently corrected.
	ErrAllocationInconsistency = errors.New("allocation inconsistency")
)
