package model

import "errors"

var (
	// ErrInvalidValue marks configuration values rejected at the boundary.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNotFound marks references to a user, alert or device that does not exist.
	ErrNotFound = errors.New("not found")
)
