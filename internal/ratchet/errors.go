package ratchet

import "errors"

// ErrNoSnapshot is returned by Rollback when there is nothing to restore.
var ErrNoSnapshot = errors.New("no ledger snapshot to restore")
