package port

import "errors"

// Sentinel errors used across ports. Services wrap these with context via
// fmt.Errorf("...: %w", err); handlers map them to transport status codes.
var (
	// ErrValidation marks malformed or out-of-range input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrPolicyViolation marks an attempted bypass of a structural safety
	// rule: a disabled action, execution without approval, double approval.
	// Always fatal to the request and logged for security review.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrConflict marks a lost race on a concurrent mutation. The caller
	// must re-read and decide whether to retry.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyReviewed marks a review attempt on a decision that already
	// left pending.
	ErrAlreadyReviewed = errors.New("decision already reviewed")

	// ErrNotFound marks a missing entity reference.
	ErrNotFound = errors.New("not found")
)
