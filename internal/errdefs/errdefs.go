// Package errdefs defines the error kinds surfaced by the tokenization
// pipeline. Callers distinguish them with errors.Is; every package wraps one
// of these sentinels with context via fmt.Errorf("...: %w", ...).
package errdefs

import "errors"

var (
	// ErrInvalidArgument reports a missing or contradictory argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports a lookup of an unknown identifier.
	ErrNotFound = errors.New("not found")

	// ErrTypeMismatch reports a value whose Go type or shape is not accepted.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrSchemaMismatch reports encoder output that does not conform to the
	// declared schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNotImplemented is returned by abstract encoders.
	ErrNotImplemented = errors.New("not implemented")
)
