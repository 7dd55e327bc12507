package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned for blank input text.
	ErrEmptyInput = errors.New("empty input")
	// ErrInputTooLarge is returned when input exceeds the character ceiling.
	ErrInputTooLarge = errors.New("input too large")
	// ErrService covers transport failures, timeouts, non-2xx responses and
	// unparseable bodies. It is the only retried error.
	ErrService = errors.New("embedding service error")
	// ErrInvalidOutput is returned when the service answers with an empty,
	// undersized or non-finite vector.
	ErrInvalidOutput = errors.New("invalid embedding output")
	// ErrStatusUnsupported is returned by CheckStatus for providers without
	// a status endpoint.
	ErrStatusUnsupported = errors.New("status check not supported by provider")
)

// Error carries the attempt count of a failed embedding call.
type Error struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
