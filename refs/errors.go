package refs

import "errors"

var (
	// ErrMalformed is returned for loose/packed-ref content that does not
	// parse as either a symbolic ref or a hex object id.
	ErrMalformed = errors.New("refs: malformed")
	// ErrNotExist is returned when a named reference has neither a loose
	// nor a packed entry.
	ErrNotExist = errors.New("refs: reference not found")
	// ErrTooManyHops is returned when following a chain of symbolic refs
	// exceeds the configured maximum, indicating a cycle or a
	// pathologically deep chain.
	ErrTooManyHops = errors.New("refs: symbolic ref chain too long")
)
