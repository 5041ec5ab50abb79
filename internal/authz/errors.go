package authz

import "errors"

var (
	// ErrInvalidArgument indicates a malformed or missing caller argument,
	// such as an empty user ID or domain, or an unknown resource/action in
	// policy administration. Distinct from a deny decision.
	ErrInvalidArgument = errors.New("authz: invalid argument")

	// ErrInvariantViolation indicates the operation would break a safety
	// invariant (removing the last owner of a domain). Nothing is mutated.
	ErrInvariantViolation = errors.New("authz: invariant violation")

	// ErrNotFound indicates the targeted record does not exist. Policy
	// deletion reports it; role revocation is deliberately idempotent and
	// does not.
	ErrNotFound = errors.New("authz: not found")

	// ErrUnavailable indicates the underlying store failed or timed out.
	// The engine does not retry internally.
	ErrUnavailable = errors.New("authz: store unavailable")
)
