package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the ledger file does not exist.
var ErrNotFound = errors.New("feature ledger not found")

// CorruptError reports a ledger file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("feature ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
