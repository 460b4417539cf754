package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/session"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

// sessionReport is what one pass through RUN_SESSION, AUDIT and
// UPDATE_PROGRESS produced.
type sessionReport struct {
	result   session.Result
	passing  int
	total    int
	complete bool
}

func (o *Orchestrator) runSession(ctx context.Context, number int, mode Mode) (sessionReport, error) {
	var rep sessionReport

	prompt, err := o.prompts.Compose(mode, o.cfg.Instructions)
	if err != nil {
		return rep, err
	}

	printSessionHeader(o.out, number, mode)
	before := o.auditor.Snapshot()
	var prevPassing map[string]bool
	passingBefore := 0
	if before != nil {
		prevPassing = before.PassingSet()
		passingBefore, rep.total = before.Progress()
		rep.passing = passingBefore
	}
	fmt.Fprintln(o.out, FormatProgress(passingBefore, rep.total))

	o.enter(StateRunSession)
	if o.cfg.Verbose {
		fmt.Fprintf(o.out, "\n  Running %s session (verbose mode)...\n\n", mode)
	} else {
		fmt.Fprintf(o.out, "\n  Running %s session...\n", mode)
	}
	log := o.logger.With(zap.Int("session", number), zap.String("mode", string(mode)))
	log.Info("session started", zap.String("runner", o.runner.Name()))

	started := time.Now()
	res := o.runner.Invoke(ctx, session.Request{Mode: string(mode), Prompt: prompt, WorkDir: o.cfg.ProjectDir})
	if res.Duration == 0 {
		res.Duration = time.Since(started)
	}
	rep.result = res
	o.runtime += res.Duration

	logPath := o.writeSessionLog(mode, started, prompt, res)
	if res.Status == session.StatusContinue && !o.cfg.Verbose && res.Stdout != "" {
		logName := ""
		if logPath != "" {
			logName = filepath.Base(logPath)
		}
		fmt.Fprintf(o.out, "\n%s\n", preview(res.Stdout, logName))
	}
	fmt.Fprintf(o.out, "\n  Session result: %s\n", res.Status)

	o.enter(StateAudit)
	audit := o.auditor.Check(before, mode.AllowsAdditions())
	if !audit.Valid {
		fmt.Fprintf(o.out, "\n  WARNING: Invalid %s change: %s\n", ledger.DefaultFileName, audit.Reason)
		if audit.RolledBack {
			fmt.Fprintf(o.out, "  Restoring previous %s\n", ledger.DefaultFileName)
		}
	}

	o.enter(StateUpdateProgress)
	var newly []ledger.Feature
	if audit.After != nil {
		newly = audit.After.NewlyPassing(prevPassing)
		rep.passing, rep.total = audit.After.Progress()
		rep.complete = audit.After.IsComplete()
	} else {
		rep.passing, rep.total = 0, 0
	}
	printNewlyPassing(o.out, newly)
	fmt.Fprintf(o.out, "\n  Session duration: %.0fs | Total runtime: %.0fs\n", res.Duration.Seconds(), o.runtime.Seconds())

	record := &storage.SessionRecord{
		ID:              uuid.NewString(),
		RunID:           o.runID,
		Number:          number,
		Mode:            string(mode),
		Runner:          o.runner.Name(),
		Status:          string(res.Status),
		StartedAt:       started.UTC(),
		DurationSeconds: res.Duration.Seconds(),
		PassingBefore:   passingBefore,
		PassingAfter:    rep.passing,
		Total:           rep.total,
		RolledBack:      audit.RolledBack,
		LogPath:         logPath,
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	if !audit.Valid {
		record.AuditReason = audit.Reason
	}
	for _, f := range newly {
		record.NewlyPassing = append(record.NewlyPassing, f.Description)
	}
	o.record(record)

	log.Info("session finished",
		zap.String("status", string(res.Status)),
		zap.Duration("duration", res.Duration),
		zap.Int("passing", rep.passing),
		zap.Int("total", rep.total),
		zap.Int("newly_passing", len(newly)),
		zap.Bool("rolled_back", audit.RolledBack))

	if audit.RollbackErr != nil {
		return rep, fmt.Errorf("%w: %v", ErrRollbackFailed, audit.RollbackErr)
	}
	return rep, nil
}

// writeSessionLog persists the transcript and returns its path, or "" when
// storage is not configured or the write failed.
func (o *Orchestrator) writeSessionLog(mode Mode, started time.Time, prompt string, res session.Result) string {
	if o.store == nil {
		return ""
	}
	path, err := o.store.WriteSessionLog(&storage.SessionLog{
		Mode:      string(mode),
		StartedAt: started,
		Duration:  res.Duration,
		Prompt:    prompt,
		Stdout:    res.Stdout,
		Stderr:    sessionStderr(res),
	})
	if err != nil {
		o.logger.Warn("could not write session log", zap.Error(err))
		return ""
	}
	return path
}

// sessionStderr falls back to the error text so failed sessions leave a
// trace in the log.
func sessionStderr(res session.Result) string {
	if res.Stderr != "" || res.Err == nil {
		return res.Stderr
	}
	return res.Err.Error()
}

func (o *Orchestrator) record(rec *storage.SessionRecord) {
	if o.store != nil {
		if err := o.store.AppendRecord(rec); err != nil {
			o.logger.Warn("could not append session record", zap.Error(err))
		}
	}
	if o.recorder == nil {
		return
	}
	o.recorder.ObserveSession(rec)
	if o.cfg.MetricsFile == "" {
		return
	}
	if err := o.recorder.WriteTextfile(o.cfg.MetricsFile); err != nil {
		o.logger.Warn("could not write metrics", zap.String("path", o.cfg.MetricsFile), zap.Error(err))
	}
}
