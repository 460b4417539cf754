// Package sandbox runs agent-proposed shell commands after validation.
//
// Every command goes through the safety validator first. A rejected command
// never reaches a process: the caller gets exit code 1 and output starting
// with "BLOCKED: ". Approved commands run under /bin/sh with a wall-clock
// timeout, in their own process group so a timeout takes down everything
// the command spawned, and with combined output capped.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
)

const (
	// DefaultTimeout bounds one command's wall-clock time.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxOutputBytes caps combined stdout and stderr.
	DefaultMaxOutputBytes = 10 * 1024

	// BlockedPrefix marks output of a command the validator rejected.
	BlockedPrefix = "BLOCKED: "

	// ExitBlocked is the exit code reported for a rejected command.
	ExitBlocked = 1
	// ExitTimeout is the exit code reported when the timeout fires.
	ExitTimeout = 124
	// ExitSpawnFailed is the exit code reported when no process could start.
	ExitSpawnFailed = -1

	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = 2 * time.Second
)

// Result is the outcome of one Execute call.
type Result struct {
	Output    string        `json:"output"`
	ExitCode  int           `json:"exit_code"`
	Blocked   bool          `json:"blocked,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Observer is told about every command the executor sees.
type Observer func(command string, verdict safety.Verdict, res Result)

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxOutputBytes overrides DefaultMaxOutputBytes.
func WithMaxOutputBytes(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers an observer, e.g. for metrics.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithShell overrides the shell used to run commands.
func WithShell(path string) Option {
	return func(e *Executor) {
		if path != "" {
			e.shell = path
		}
	}
}

// Executor validates and runs commands. It holds no state between calls.
type Executor struct {
	validator *safety.Validator
	timeout   time.Duration
	maxOutput int
	shell     string
	logger    *zap.Logger
	observer  Observer
}

// New returns an executor guarded by v.
func New(v *safety.Validator, opts ...Option) *Executor {
	if v == nil {
		v = safety.NewValidator(safety.DefaultPolicy())
	}
	e := &Executor{
		validator: v,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutputBytes,
		shell:     "/bin/sh",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates command and, if allowed, runs it in workDir.
func (e *Executor) Execute(ctx context.Context, command, workDir string) Result {
	verdict := e.validator.Validate(command)
	if !verdict.Allowed {
		res := Result{
			Output:   BlockedPrefix + verdict.Reason,
			ExitCode: ExitBlocked,
			Blocked:  true,
		}
		e.logger.Info("command blocked",
			zap.String("command", command),
			zap.String("reason", verdict.Reason))
		e.notify(command, verdict, res)
		return res
	}

	res := e.run(ctx, command, workDir)
	e.logger.Debug("command finished",
		zap.String("command", command),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration))
	e.notify(command, verdict, res)
	return res
}

func (e *Executor) notify(command string, verdict safety.Verdict, res Result) {
	if e.observer != nil {
		e.observer(command, verdict, res)
	}
}

func (e *Executor) run(ctx context.Context, command, workDir string) Result {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.shell, "-c", command)
	cmd.Dir = workDir
	IsolateProcessGroup(cmd)

	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, max: int64(e.maxOutput)}
	// One writer for both streams keeps them interleaved in a single pipe.
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start)}

	output := buf.String()
	if out.truncated {
		res.Truncated = true
		output += fmt.Sprintf("\n... [output truncated, %d bytes omitted]", out.discarded)
	}

	switch {
	case err == nil:
		res.Output = output
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ExitCode = ExitTimeout
		res.Output = fmt.Sprintf("TIMEOUT: command exceeded %s", e.timeout)
		if output != "" {
			res.Output += "\n" + output
		}
	case ctx.Err() != nil:
		res.ExitCode = ExitSpawnFailed
		res.Output = fmt.Sprintf("ERROR: command canceled: %v", ctx.Err())
		if output != "" {
			res.Output += "\n" + output
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Output = output
			break
		}
		res.ExitCode = ExitSpawnFailed
		res.Output = fmt.Sprintf("ERROR: %v", err)
	}
	return res
}

// IsolateProcessGroup starts cmd in its own process group and makes context
// cancellation kill the whole group. Wait gives up on inherited pipes shortly
// after the kill.
func IsolateProcessGroup(cmd *exec.Cmd) {
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
}

// limitedWriter keeps the first max bytes and counts the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// IsBlocked reports whether output is a validator rejection.
func IsBlocked(output string) bool {
	return len(output) >= len(BlockedPrefix) && output[:len(BlockedPrefix)] == BlockedPrefix
}
