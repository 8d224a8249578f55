package backend

import (
	"errors"
	"fmt"
)

// ErrUnsupportedBackendKind is returned when a configuration tag does not name
// a registered backend. It is raised before any backend is touched.
var ErrUnsupportedBackendKind = errors.New("unsupported backend kind")

// InitError wraps a backend-specific startup failure.
type InitError struct {
	Kind Kind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s backend: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// DestroyError wraps a backend-specific teardown failure. By the time a
// caller sees it, the node handle has already been released.
type DestroyError struct {
	Kind Kind
	Err  error
}

func (e *DestroyError) Error() string {
	return fmt.Sprintf("destroy %s backend: %v", e.Kind, e.Err)
}

func (e *DestroyError) Unwrap() error {
	return e.Err
}
