package storage

import (
	"errors"
	"fmt"
)

// ConnectionError reports that the store could not be reached: opening the
// pool, acquiring a connection, or a network failure mid-statement.
type ConnectionError struct {
	Kind string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: connection: %v", e.Kind, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LoadError reports that the store rejected the data being loaded, e.g. a
// malformed row or a column count mismatch.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsConnection reports whether err is or wraps a *ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsLoad reports whether err is or wraps a *LoadError.
func IsLoad(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
