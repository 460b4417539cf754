package ratchet

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
)

// Auditor checks the ledger file at Path after each session and restores the
// pre-session snapshot when the change is not allowed.
type Auditor struct {
	Path   string
	logger *zap.Logger
}

// NewAuditor returns an auditor for the ledger at path. A nil logger is
// replaced with a no-op one.
func NewAuditor(path string, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{Path: path, logger: logger}
}

// Snapshot captures the ledger before a session. A corrupt file is logged
// and treated as absent.
func (a *Auditor) Snapshot() *ledger.Ledger {
	snap, err := ledger.Snapshot(a.Path)
	if err != nil {
		a.logger.Warn("ledger unreadable, treating as absent",
			zap.String("path", a.Path), zap.Error(err))
		return nil
	}
	if snap == nil {
		return nil
	}
	c := snap.Clone()
	return &c
}

// Outcome describes what Check did.
type Outcome struct {
	Result
	// After is the ledger now on disk: the session's ledger when valid, the
	// restored snapshot after a rollback, nil when absent.
	After *ledger.Ledger
	// RolledBack is true when the snapshot was written back.
	RolledBack bool
	// RollbackErr is set when restoring the snapshot failed.
	RollbackErr error
}

// Check reloads the ledger, audits it against before and rolls back on an
// invalid verdict.
func (a *Auditor) Check(before *ledger.Ledger, allowAdditions bool) Outcome {
	after := a.Snapshot()
	res := Audit(before, after, allowAdditions)
	if res.Valid {
		return Outcome{Result: res, After: after}
	}

	a.logger.Warn("ledger change rejected",
		zap.String("path", a.Path),
		zap.String("reason", res.Reason),
		zap.Strings("removed", res.Removed),
		zap.Strings("added", res.Added))

	out := Outcome{Result: res, After: after}
	if err := Rollback(a.Path, before); err != nil {
		a.logger.Error("ledger rollback failed", zap.String("path", a.Path), zap.Error(err))
		out.RollbackErr = err
		return out
	}
	out.RolledBack = true
	out.After = before
	a.logger.Info("ledger restored from snapshot", zap.String("path", a.Path))
	return out
}

// Rollback overwrites the ledger at path with the snapshot.
func Rollback(path string, before *ledger.Ledger) error {
	if before == nil {
		return ErrNoSnapshot
	}
	if err := ledger.Save(path, *before); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	return nil
}
