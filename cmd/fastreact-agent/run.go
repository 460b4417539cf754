package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/config"
	"github.com/ferdousbhai/create-fastreact/internal/metrics"
	"github.com/ferdousbhai/create-fastreact/internal/orchestrator"
	"github.com/ferdousbhai/create-fastreact/internal/safety"
	"github.com/ferdousbhai/create-fastreact/internal/sandbox"
	"github.com/ferdousbhai/create-fastreact/internal/session"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
	"github.com/ferdousbhai/create-fastreact/internal/toolchain"
)

var (
	runContinue       bool
	runMaxIterations  int
	runTimeout        string
	runRunner         string
	runRuntimeCommand string
	runStream         bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run [instructions]",
		Short: "Run the autonomous session loop",
		Long: `Run agent sessions until every feature in feature_list.json passes.

Modes:
  - New project (no feature_list.json): an initializer session builds the
    feature list from the instructions, then coding sessions follow.
  - Existing project without --continue: an enhancement session may add
    features for the new instructions, then coding sessions follow.
  - --continue: coding sessions only; feature_list.json must exist.

Instructions come from the argument (saved to app_spec.md) or from an
existing app_spec.md.

Between sessions the loop waits briefly. Press Ctrl-C or create
.fastreact-agent/PAUSE to pause; a second Ctrl-C stops immediately.

Examples:
  fastreact-agent run "Build a todo app"
  fastreact-agent run                      # uses app_spec.md
  fastreact-agent run --continue -n 5      # at most 5 coding sessions
  fastreact-agent run --runner api -v      # Messages API, streamed output`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLoop,
	}

	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Skip the initializer and only code existing features")
	runCmd.Flags().IntVarP(&runMaxIterations, "max-iterations", "n", 0, "Maximum number of sessions (0 = unlimited)")
	runCmd.Flags().StringVarP(&runTimeout, "timeout", "t", "", "Timeout per session, e.g. 1200s or 20m (default from config)")
	runCmd.Flags().StringVar(&runRunner, "runner", "", "Session runner: auto|cli|api")
	runCmd.Flags().StringVar(&runRuntimeCommand, "runtime-cmd", "", "Agent CLI command for the cli runner (default: claude)")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "Use stream-json output and report tool calls as they happen (cli runner)")

	rootCmd.AddCommand(runCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, &config.Config{
		Loop:   config.LoopConfig{MaxIterations: runMaxIterations, SessionTimeout: runTimeout},
		Runner: config.RunnerConfig{Stream: runStream},
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := cmd.OutOrStdout()

	var cliInstructions string
	if len(args) == 1 {
		cliInstructions = args[0]
	}
	if dryRun {
		return printRunPlan(out, dir, cfg, cliInstructions)
	}

	instructions, created, err := orchestrator.ResolveInstructions(dir, cliInstructions)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintln(out, "  Created app_spec.md from instructions")
	}

	store := storage.NewFileStorage(storage.WithBaseDir(cfg.StatePath(dir)))
	if err := store.Init(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var recorder *metrics.Recorder
	metricsFile := ""
	if !cfg.Metrics.Disabled {
		recorder = metrics.New()
		metricsFile = cfg.StatePath(dir, cfg.Metrics.File)
	}

	runner, err := buildRunner(cmd, dir, cfg, recorder, logger)
	if err != nil {
		if errors.Is(err, errNoRunner) {
			fmt.Fprintln(out, "  No agent runner available")
			fmt.Fprintln(out, "\n  Install Claude Code: https://docs.anthropic.com/en/docs/claude-code")
			fmt.Fprintf(out, "  or set %s to use the API runner\n", cfg.API.KeyEnv)
		}
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pauser, err := orchestrator.NewPauser(cfg.StatePath(dir),
		orchestrator.WithSignals(),
		orchestrator.WithHardStop(cancel),
		orchestrator.WithPauseLogger(logger))
	if err != nil {
		return fmt.Errorf("pause watcher: %w", err)
	}
	defer func() { _ = pauser.Close() }()

	orch, err := orchestrator.New(orchestrator.Config{
		ProjectDir:     dir,
		Instructions:   instructions,
		Continue:       runContinue,
		MaxIterations:  cfg.Loop.MaxIterations,
		SessionTimeout: cfg.SessionTimeout(),
		PauseWindow:    cfg.PauseWindow(),
		Verbose:        cfg.Verbose,
		MetricsFile:    metricsFile,
	}, runner,
		orchestrator.WithStorage(store),
		orchestrator.WithMetrics(recorder),
		orchestrator.WithPause(pauser),
		orchestrator.WithLogger(logger),
		orchestrator.WithOutput(out))
	if err != nil {
		return err
	}

	outcome, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, orchestrator.ErrPrecondition) {
			fmt.Fprintf(out, "\n  Error: %v\n", err)
			printPreconditionHint(out)
		}
		return err
	}
	logger.Info("run finished",
		zap.String("state", outcome.State.String()),
		zap.String("reason", outcome.Reason),
		zap.Int("sessions", outcome.Sessions))
	return nil
}

func printPreconditionHint(w io.Writer) {
	if runContinue {
		fmt.Fprintln(w, "  Run 'fastreact-agent run' first to initialize the feature list.")
		return
	}
	fmt.Fprintln(w, "  Either create app_spec.md or run: fastreact-agent run \"Your app description\"")
}

var errNoRunner = errors.New("no agent runner available")

// buildRunner selects and constructs the session runner once for the run.
func buildRunner(cmd *cobra.Command, dir string, cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) (session.Runner, error) {
	tc, err := toolchain.Resolve(toolchain.ResolveOptions{
		Config: toolchain.Toolchain{
			RunnerMode:     cfg.Runner.Mode,
			RuntimeCommand: cfg.Runner.Command,
		},
		FlagValues: toolchain.Toolchain{
			RunnerMode:     runRunner,
			RuntimeCommand: runRuntimeCommand,
		},
		FlagSet: toolchain.FlagSet{
			RunnerMode:     cmd.Flags().Changed("runner"),
			RuntimeCommand: cmd.Flags().Changed("runtime-cmd"),
		},
	})
	if err != nil {
		return nil, err
	}
	mode, err := toolchain.Select(tc, exec.LookPath, cfg.APIKey() != "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoRunner, err)
	}
	out := cmd.OutOrStdout()

	switch mode {
	case toolchain.ModeCLI:
		settings := ""
		if !cfg.Runner.NoHook {
			settings = cfg.StatePath(dir, session.HookSettingsFile)
			if err := session.WriteHookSettings(settings, hookCommandLine(dir)); err != nil {
				return nil, fmt.Errorf("write hook settings: %w", err)
			}
		}
		return session.NewCLIRunner(session.CLIConfig{
			Command:      tc.RuntimeCommand,
			Timeout:      cfg.SessionTimeout(),
			Verbose:      cfg.Verbose,
			Stream:       cfg.Runner.Stream,
			SettingsPath: settings,
			Out:          out,
			Logger:       logger,
		}), nil
	case toolchain.ModeAPI:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("%w: %s is not set", session.ErrNoAPIKey, cfg.API.KeyEnv)
		}
		return session.NewAPIRunner(session.APIConfig{
			BaseURL:   cfg.API.BaseURL,
			APIKey:    key,
			Model:     cfg.API.Model,
			MaxTokens: cfg.API.MaxTokens,
			MaxTurns:  cfg.API.MaxTurns,
			Timeout:   cfg.SessionTimeout(),
			Verbose:   cfg.Verbose,
			Executor:  newExecutor(cfg, recorder, logger),
			Out:       out,
			Logger:    logger,
		}), nil
	}
	return nil, fmt.Errorf("unsupported runner %q", mode)
}

// newExecutor builds the sandbox from config, counting verdicts when a
// recorder is present.
func newExecutor(cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) *sandbox.Executor {
	opts := []sandbox.Option{
		sandbox.WithTimeout(cfg.CommandTimeout()),
		sandbox.WithMaxOutputBytes(cfg.Safety.MaxOutputBytes),
		sandbox.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, sandbox.WithObserver(func(_ string, v safety.Verdict, _ sandbox.Result) {
			recorder.ObserveCommand(v)
		}))
	}
	return sandbox.New(newValidator(cfg), opts...)
}

func newValidator(cfg *config.Config) *safety.Validator {
	return safety.NewValidator(safety.DefaultPolicy().WithExtraCommands(cfg.Safety.ExtraCommands...))
}

// hookCommandLine is the shell command the runtime invokes for each Bash
// tool call.
func hookCommandLine(dir string) string {
	self, err := os.Executable()
	if err != nil {
		self = "fastreact-agent"
	}
	return fmt.Sprintf("%s hook pre-tool-use --project %s", shellQuote(self), shellQuote(dir))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func printRunPlan(w io.Writer, dir string, cfg *config.Config, cliInstructions string) error {
	fmt.Fprintln(w, "[dry-run] Would run the session loop:")
	fmt.Fprintf(w, "  project:         %s\n", dir)
	if runContinue {
		fmt.Fprintln(w, "  mode:            continue (coding only)")
	} else {
		fmt.Fprintln(w, "  mode:            full (initializer + coding)")
	}
	if cliInstructions != "" {
		fmt.Fprintf(w, "  instructions:    %s\n", filepath.Join(dir, "app_spec.md"))
	}
	fmt.Fprintf(w, "  runner:          %s\n", firstNonEmpty(runRunner, cfg.Runner.Mode))
	fmt.Fprintf(w, "  session timeout: %s\n", cfg.SessionTimeout())
	if cfg.Loop.MaxIterations > 0 {
		fmt.Fprintf(w, "  max iterations:  %d\n", cfg.Loop.MaxIterations)
	}
	fmt.Fprintf(w, "  state dir:       %s\n", cfg.StatePath(dir))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
