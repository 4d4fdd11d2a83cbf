// Package errors defines the error types shared across the collector.
package errors

import (
	"errors"
	"fmt"
)

// ErrSingletonView reports a global statistics view that returned more or
// fewer rows than the single row it must have.
var ErrSingletonView = errors.New("global view must return exactly one row")

// QueryError is the single failure kind raised by the catalog query layer.
// It carries the failing statement together with the underlying cause.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to execute sql %s: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError wraps err with the statement that produced it.
func NewQueryError(query string, err error) *QueryError {
	return &QueryError{Query: query, Err: err}
}
