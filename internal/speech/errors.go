package speech

import "errors"

// Common errors returned by the speech package
var (
	// ErrEmptyText is returned when synthesis is requested for empty text.
	ErrEmptyText = errors.New("text to synthesize cannot be empty")

	// ErrSynthesisFailed is returned when the provider fails to produce audio.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrTransientFailure is returned for temporary provider errors that
	// might resolve on retry.
	ErrTransientFailure = errors.New("transient error during speech synthesis")

	// ErrInvalidConfig is returned when the synthesizer configuration is invalid.
	ErrInvalidConfig = errors.New("invalid synthesizer configuration")
)
