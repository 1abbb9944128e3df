package index

import "errors"

var (
	// ErrNotFound indicates no pointer record exists for the object.
	ErrNotFound = errors.New("index: record not found")

	// ErrInvalidRecord indicates a pointer record is missing a required field.
	ErrInvalidRecord = errors.New("index: invalid record")

	// ErrInvalidDSN indicates an empty PostgreSQL connection string.
	ErrInvalidDSN = errors.New("index: invalid postgres dsn")
)
