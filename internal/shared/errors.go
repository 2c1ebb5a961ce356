package shared

import "errors"

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("not found")

// FieldError marks a single request field that failed validation.
type FieldError struct {
	Field string
}

func (e FieldError) Error() string {
	return "invalid field: " + e.Field
}
