package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrSessionIDRequired is returned when a record is appended without an ID.
	ErrSessionIDRequired = errors.New("session ID is required")

	// ErrModeRequired is returned when a session log has no mode.
	ErrModeRequired = errors.New("session mode is required")
)
