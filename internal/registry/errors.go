package registry

import (
	"errors"
	"fmt"
)

// TransportError is a connection, timeout or overload failure. It is worth retrying.
type TransportError struct {
	Op         string
	StatusCode int // Non-zero when the registry answered 429 or 5xx
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the response body could not be understood
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// RegistryError is an application-level rejection reported by the registry
type RegistryError struct {
	StatusCode int
	Message    string
}

func (e *RegistryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry error (status %d): %s", e.StatusCode, e.Message)
	}
	return "registry error: " + e.Message
}

// IsTransient reports whether err is a transport failure that may succeed on retry
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
