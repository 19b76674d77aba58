// Package common defines shared sentinel errors used across the
// persistence and replication layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository/backend-level errors.
	ErrNotFound = errors.New("not found")

	// ErrEmptyOverwrite is returned when a write would replace a non-empty
	// persisted document with an empty one. The on-disk state is left
	// untouched.
	ErrEmptyOverwrite = errors.New("refusing to overwrite non-empty state with empty document")

	// ErrRevisionConflict indicates an optimistic-concurrency mismatch on a
	// remote snapshot write.
	ErrRevisionConflict = errors.New("revision conflict")

	// Token errors surfaced by the identity layer.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Validation errors surfaced by the typed store operations.
	ErrLoginTaken       = errors.New("login already exists")
	ErrInvalidLogin     = errors.New("invalid login/password")
	ErrDuplicatePayment = errors.New("payment already recorded for this month")
)
