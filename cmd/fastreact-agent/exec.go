package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/sandbox"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a shell command through the sandbox",
	Long: `Run a shell command exactly as the agent's bash tool would: validated
first, then executed in the project directory with a timeout and an output
cap. A blocked command prints "BLOCKED: <reason>" and exits 1.

The process exits with the command's exit code (124 on timeout).

Examples:
  fastreact-agent exec "git status"
  fastreact-agent exec "cd frontend && pnpm run build"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	raw := strings.Join(args, " ")
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	w := cmd.OutOrStdout()
	if dryRun {
		verdict := newValidator(cfg).Validate(raw)
		fmt.Fprintf(w, "[dry-run] Would run in %s: %s (allowed=%v)\n", dir, raw, verdict.Allowed)
		return nil
	}

	res := newExecutor(cfg, nil, logger).Execute(cmd.Context(), raw, dir)
	if res.Output != "" {
		fmt.Fprint(w, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Fprintln(w)
		}
	}
	if res.ExitCode != 0 {
		what := "command failed"
		switch {
		case res.Blocked:
			what = "command blocked"
		case res.TimedOut:
			what = "command timed out"
		case res.ExitCode == sandbox.ExitSpawnFailed:
			what = "command could not start"
		}
		code := res.ExitCode
		if code < 0 {
			code = 1
		}
		return &exitError{code: code, err: fmt.Errorf("%s (exit %d)", what, res.ExitCode)}
	}
	return nil
}
