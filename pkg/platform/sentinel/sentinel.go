// Package sentinel defines shared sentinel errors used across store
// implementations so services can branch on them without importing a
// concrete store.
package sentinel

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")
	// ErrExpired is returned when a token or grant is past its validity.
	ErrExpired = errors.New("expired")
)
