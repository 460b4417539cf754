package session

import "errors"

var (
	// ErrEmptyPrompt is returned when a session is requested without a prompt.
	ErrEmptyPrompt = errors.New("session prompt is empty")

	// ErrNoAPIKey is returned when the API runner has no key configured.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrPathEscapes is returned when a file tool targets a path outside the
	// project directory.
	ErrPathEscapes = errors.New("path escapes the project directory")
)
