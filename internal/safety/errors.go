package safety

import "errors"

// Sentinel errors for the safety package.
var (
	// ErrUnparseable is returned when a command's quoting cannot be parsed.
	// Such commands are never guessed at; the validator rejects them.
	ErrUnparseable = errors.New("command could not be parsed")

	// ErrEmptyCommand is returned for a command with no segments.
	ErrEmptyCommand = errors.New("empty command")
)
