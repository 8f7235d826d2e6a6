package storage

import "errors"

var (
	// ErrDBRequired is returned when a Store is built without a database handle.
	ErrDBRequired = errors.New("database required")

	// ErrMalformedRecord marks an article missing a required field; it is skipped, not stored.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicateURL marks an article whose url already belongs to another external id.
	// The first stored article keeps the url.
	ErrDuplicateURL = errors.New("url already stored under another external id")

	// ErrUnavailable means the storage backend cannot be reached at all.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned by single-record lookups.
	ErrNotFound = errors.New("not found")
)
