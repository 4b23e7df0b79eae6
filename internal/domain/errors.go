// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is the root of every entity validation error; callers can
	// match the whole family with errors.Is. The article sentinels in
	// article.go all wrap it.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when stored or received data is not in the
	// expected format, such as a corrupt JSON column.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrEmptyContent is returned when content required by an operation is
	// empty, such as narration input that sanitizes down to nothing.
	ErrEmptyContent = errors.New("content cannot be empty")
)
