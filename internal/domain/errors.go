package domain

import "errors"

var (
	// ErrNotFound is returned for unknown article, status, job or adapter ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation is not legal in the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidationFailed marks incomplete destination settings.
	ErrValidationFailed = errors.New("validation failed")
	// ErrDestinationFailure marks adapter-level failures (credentials, remote rejection, network).
	ErrDestinationFailure = errors.New("destination failure")
	// ErrUnsupportedOperation marks update/delete calls a destination does not support.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
