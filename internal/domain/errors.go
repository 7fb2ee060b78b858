// internal/domain/errors.go
package domain

import "errors"

var (
	// ErrNotFound is returned by providers when a token is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidEntry rejects positions whose entry value cannot be divided by.
	ErrInvalidEntry = errors.New("invalid entry value")
	// ErrMissingCredentials is a startup configuration error.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrConfig wraps every configuration validation failure.
	ErrConfig = errors.New("invalid configuration")
)
