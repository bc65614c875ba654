package store

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// not owned by the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a document write carries a stale
	// expected version. The caller re-reads and retries once.
	ErrVersionConflict = errors.New("version conflict")

	// ErrEmailTaken is returned on signup with an already registered email.
	ErrEmailTaken = errors.New("email already registered")
)
