package helper

import "fmt"

// Error wraps an underlying error with the operation that failed.
type Error struct {
	Op  string
	Err error
}

// NewError creates a new Error for the given operation.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %v: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
