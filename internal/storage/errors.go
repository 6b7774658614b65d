package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("storage: key not found")
	// ErrCapacityExceeded is returned when a write would push the store past its size budget.
	ErrCapacityExceeded = errors.New("storage: size limit exceeded")
	// ErrNotImplemented is returned by New for declared but unbuilt backends.
	ErrNotImplemented = errors.New("storage: backend not implemented")
	ErrUnknownKind    = errors.New("storage: unknown backend kind")
	ErrClosed         = errors.New("storage: closed")
)
