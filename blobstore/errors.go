package blobstore

import "errors"

var (
	// ErrInvalidBaseDir indicates an empty base directory.
	ErrInvalidBaseDir = errors.New("blobstore: base directory must not be empty")

	// ErrInvalidHash indicates a blob reference that is not 64 hex characters.
	ErrInvalidHash = errors.New("blobstore: invalid content hash")

	// ErrNotFound indicates no blob is stored under the hash.
	ErrNotFound = errors.New("blobstore: blob not found")

	// ErrCorrupt indicates stored bytes no longer hash to their reference.
	ErrCorrupt = errors.New("blobstore: blob content does not match its hash")

	// ErrIOFailure indicates a filesystem error.
	ErrIOFailure = errors.New("blobstore: I/O failure")
)
