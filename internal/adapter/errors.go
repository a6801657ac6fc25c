package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a record with the same ID is already stored.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPreconditionFailed is returned when a revision mismatch occurs.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrLimitExceeded is returned when a demo account reaches its quota.
	ErrLimitExceeded = errors.New("storage limit exceeded")
)
