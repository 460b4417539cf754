package orchestrator

import "errors"

var (
	// ErrPrecondition is returned when the loop cannot start or continue
	// because required input is missing. It is the only fatal error class.
	ErrPrecondition = errors.New("precondition failed")

	// ErrRollbackFailed is returned when a rejected ledger change could not
	// be reverted, leaving an unaudited ledger on disk.
	ErrRollbackFailed = errors.New("ledger rollback failed")

	// ErrNoRunner is returned by New when no session runner is configured.
	ErrNoRunner = errors.New("no session runner configured")
)
