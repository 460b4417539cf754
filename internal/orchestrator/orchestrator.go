// Package orchestrator runs the coding loop: it picks a session mode,
// invokes the agent, audits what the agent did to the feature ledger and
// either commits or rolls back, until every feature passes or the loop is
// paused.
//
// The loop is strictly sequential. The ledger file is only ever left in
// one of two states after a session: the pre-session snapshot (after a
// rollback) or a post-session ledger the auditor accepted.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/metrics"
	"github.com/ferdousbhai/create-fastreact/internal/ratchet"
	"github.com/ferdousbhai/create-fastreact/internal/session"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

const (
	// DefaultPauseWindow is how long the loop waits for a pause request
	// between sessions.
	DefaultPauseWindow = 3 * time.Second

	// DefaultResumeCommand is printed when the loop pauses.
	DefaultResumeCommand = "fastreact-agent run --continue"
)

// Config is the explicit configuration of one loop run.
type Config struct {
	// ProjectDir is the project the agent works in; it holds the ledger.
	ProjectDir string
	// Instructions are the app instructions given to ledger-building
	// sessions. Required unless Continue is set.
	Instructions string
	// Continue skips the initializer and only codes existing features.
	Continue bool
	// MaxIterations caps the number of sessions; 0 means unlimited.
	MaxIterations int
	// SessionTimeout is reported in the run header. The runner enforces it.
	SessionTimeout time.Duration
	// PauseWindow is the wait between sessions.
	PauseWindow time.Duration
	// Verbose suppresses the output preview since output was streamed.
	Verbose bool
	// MetricsFile, when set, receives the metrics textfile after every
	// session.
	MetricsFile string
	// ResumeCommand is shown when the loop pauses.
	ResumeCommand string
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID    string
	State    State
	Reason   string
	Sessions int
	Passing  int
	Total    int
	Runtime  time.Duration
}

// Orchestrator drives the session state machine.
type Orchestrator struct {
	cfg        Config
	runner     session.Runner
	auditor    *ratchet.Auditor
	prompts    *Prompts
	store      storage.Storage
	recorder   *metrics.Recorder
	pause      PauseSource
	logger     *zap.Logger
	out        io.Writer
	ledgerPath string

	runID   string
	state   State
	runtime time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStorage records session logs and the sessions index.
func WithStorage(s storage.Storage) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithMetrics records session metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithPause sets the source of pause requests between sessions.
func WithPause(p PauseSource) Option {
	return func(o *Orchestrator) {
		o.pause = p
	}
}

// WithPrompts overrides the prompt loader.
func WithPrompts(p *Prompts) Option {
	return func(o *Orchestrator) {
		o.prompts = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithOutput sets where human progress output goes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.out = w
	}
}

// New builds an orchestrator for cfg that invokes the agent through runner.
func New(cfg Config, runner session.Runner, opts ...Option) (*Orchestrator, error) {
	if runner == nil {
		return nil, ErrNoRunner
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	abs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	cfg.ProjectDir = abs
	if cfg.PauseWindow <= 0 {
		cfg.PauseWindow = DefaultPauseWindow
	}
	if cfg.ResumeCommand == "" {
		cfg.ResumeCommand = DefaultResumeCommand
	}

	o := &Orchestrator{
		cfg:        cfg,
		runner:     runner,
		pause:      sleepPause{},
		logger:     zap.NewNop(),
		out:        os.Stdout,
		ledgerPath: ledger.PathFor(cfg.ProjectDir),
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prompts == nil {
		o.prompts = NewPrompts(cfg.ProjectDir)
	}
	o.logger = o.logger.With(zap.String("run_id", o.runID))
	o.auditor = ratchet.NewAuditor(o.ledgerPath, o.logger)
	return o, nil
}

// State returns the current state of the machine.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) enter(s State) {
	o.state = s
	o.logger.Debug("state", zap.Stringer("state", s))
}

// Run executes sessions until the ledger is complete, a pause is requested,
// the iteration budget is spent or a precondition fails. Only precondition
// and rollback failures are returned as errors; failed sessions are not.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{RunID: o.runID}
	o.runtime = 0
	o.printRunHeader()

	initMode, err := o.checkPreconditions()
	if err != nil {
		o.enter(StateError)
		out.State = StateError
		out.Reason = err.Error()
		return out, err
	}
	initDone := initMode == ""

	for number := 1; ; number++ {
		if o.cfg.MaxIterations > 0 && number > o.cfg.MaxIterations {
			fmt.Fprintf(o.out, "\n  Max iterations reached (%d)\n", o.cfg.MaxIterations)
			o.enter(StatePaused)
			out.State = StatePaused
			out.Reason = "max iterations reached"
			return out, nil
		}

		o.enter(StateDetermineMode)
		mode := ModeCoding
		if !initDone {
			mode = initMode
		}

		rep, err := o.runSession(ctx, number, mode)
		out.Sessions = number
		out.Runtime = o.runtime
		out.Passing, out.Total = rep.passing, rep.total
		if err != nil {
			o.enter(StateError)
			out.State = StateError
			out.Reason = err.Error()
			return out, err
		}

		if !initDone {
			if ledger.Exists(o.ledgerPath) {
				fmt.Fprintf(o.out, "\n  %s created/updated!\n", ledger.DefaultFileName)
				initDone = true
			} else {
				fmt.Fprintf(o.out, "\n  WARNING: %s not created - will retry\n", ledger.DefaultFileName)
				o.logger.Warn("ledger not created, retrying", zap.String("mode", string(mode)))
			}
		}

		if rep.complete {
			printComplete(o.out, rep.total, number, o.runtime.Seconds())
			o.enter(StateComplete)
			out.State = StateComplete
			return out, nil
		}

		if rep.result.Status == session.StatusError {
			fmt.Fprintf(o.out, "\n  Error: %s\n", rep.result.Output)
			o.enter(StateError)
		}

		if ctx.Err() != nil {
			fmt.Fprintf(o.out, "\n\n  Interrupted. Resume with: %s\n", o.cfg.ResumeCommand)
			o.enter(StatePaused)
			out.State = StatePaused
			out.Reason = "interrupted"
			return out, nil
		}

		o.enter(StateContinue)
		if o.cfg.MaxIterations > 0 && number >= o.cfg.MaxIterations {
			continue
		}
		if o.waitForPause(ctx) {
			fmt.Fprintf(o.out, "\n  Paused after session %d\n  Resume with: %s\n", number, o.cfg.ResumeCommand)
			o.enter(StatePaused)
			out.State = StatePaused
			out.Reason = "pause requested"
			return out, nil
		}
	}
}

// checkPreconditions validates the inputs and returns the ledger-building
// mode to start with, or "" when the run goes straight to coding.
func (o *Orchestrator) checkPreconditions() (Mode, error) {
	exists := ledger.Exists(o.ledgerPath)
	var initMode Mode
	if o.cfg.Continue {
		if !exists {
			return "", fmt.Errorf("%w: cannot use --continue without existing %s", ErrPrecondition, ledger.DefaultFileName)
		}
		fmt.Fprintf(o.out, "\n  Continuing: Working on existing features only\n")
	} else {
		if o.cfg.Instructions == "" {
			return "", fmt.Errorf("%w: no instructions provided; create %s or pass instructions", ErrPrecondition, appSpecFile)
		}
		if exists {
			fmt.Fprintf(o.out, "\n  Existing project: Running initializer (may add new features)\n")
			initMode = ModeEnhancementInit
		} else {
			fmt.Fprintf(o.out, "\n  New project: Running initializer to create feature list\n")
			initMode = ModeInitializer
		}
	}

	modes := []Mode{ModeCoding}
	if initMode != "" {
		modes = append(modes, initMode)
	}
	for _, m := range modes {
		if _, err := o.prompts.Load(m.promptName()); err != nil {
			return "", err
		}
	}
	return initMode, nil
}

func (o *Orchestrator) printRunHeader() {
	fmt.Fprintf(o.out, "\n  Project: %s\n", o.cfg.ProjectDir)
	if o.cfg.Continue {
		fmt.Fprintf(o.out, "  Mode: Continue (existing features only)\n")
	} else {
		fmt.Fprintf(o.out, "  Mode: Full (initializer + coding)\n")
	}
	if o.cfg.SessionTimeout > 0 {
		fmt.Fprintf(o.out, "  Timeout: %.0fs per session\n", o.cfg.SessionTimeout.Seconds())
	}
	fmt.Fprintf(o.out, "  Runner: %s\n", o.runner.Name())
	if o.cfg.Verbose {
		fmt.Fprintf(o.out, "  Output: Verbose (streaming)\n")
	}
}

func (o *Orchestrator) waitForPause(ctx context.Context) bool {
	how := "Press Ctrl-C"
	if p, ok := o.pause.(*Pauser); ok {
		how = fmt.Sprintf("Press Ctrl-C or touch %s", p.Path())
	}
	fmt.Fprintf(o.out, "\n  %s to pause, or wait %.0fs to continue...", how, o.cfg.PauseWindow.Seconds())
	if o.pause.Wait(ctx, o.cfg.PauseWindow) {
		fmt.Fprintln(o.out, " [PAUSED]")
		return true
	}
	fmt.Fprintln(o.out, " [CONTINUING]")
	return false
}
