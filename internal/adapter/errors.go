package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrTableNotFound is returned when the table itself does not exist.
	ErrTableNotFound = fmt.Errorf("table: %w", ErrNotFound)

	// ErrForbidden is returned when a capability token does not grant the
	// requested access.
	ErrForbidden = errors.New("access forbidden")
)
