// path: internal/application/common/errors.go
package common

import "errors"

// Application-layer errors not already covered by a domain sentinel.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
	ErrNotFound        = errors.New("resource not found")
)
