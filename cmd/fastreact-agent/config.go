package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/config"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `View fastreact-agent configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (FASTREACT_*)
  3. Project config (.fastreact-agent/config.yaml)
  4. Home config (~/.fastreact-agent/config.yaml)
  5. Defaults

Environment variables:
  FASTREACT_CONFIG           - Explicit config file path (overrides the project config location)
  FASTREACT_OUTPUT           - Default output format (table, json)
  FASTREACT_STATE_DIR        - State directory (default: .fastreact-agent)
  FASTREACT_VERBOSE          - Stream agent output (true/1)
  FASTREACT_MAX_ITERATIONS   - Session cap for run (0 = unlimited)
  FASTREACT_SESSION_TIMEOUT  - Timeout per session (e.g. 1200s, 20m)
  FASTREACT_PAUSE_WINDOW     - Wait between sessions (default: 3s)
  FASTREACT_RUNNER           - Session runner (auto|cli|api)
  FASTREACT_RUNTIME_COMMAND  - Agent CLI command (default: claude)
  FASTREACT_STREAM           - Use stream-json output in the cli runner (true/1)
  FASTREACT_NO_HOOK          - Do not install the command-validation hook (true/1)
  FASTREACT_API_BASE_URL     - Messages API base URL
  FASTREACT_MODEL            - Model used by the api runner
  FASTREACT_EXTRA_COMMANDS   - Comma-separated executables added to the allowlist
  FASTREACT_NO_METRICS       - Disable the metrics textfile (true/1)
  FASTREACT_LOG_FORMAT       - Log encoding (console, json)
  FASTREACT_LOG_LEVEL        - Log level (debug, info, warn, error)

Examples:
  fastreact-agent config --show
  fastreact-agent config --show -o json`,
	RunE: runConfig,
}

var configEnvVars = []string{
	"FASTREACT_CONFIG",
	"FASTREACT_OUTPUT",
	"FASTREACT_STATE_DIR",
	"FASTREACT_VERBOSE",
	"FASTREACT_MAX_ITERATIONS",
	"FASTREACT_SESSION_TIMEOUT",
	"FASTREACT_PAUSE_WINDOW",
	"FASTREACT_RUNNER",
	"FASTREACT_RUNTIME_COMMAND",
	"FASTREACT_STREAM",
	"FASTREACT_NO_HOOK",
	"FASTREACT_API_BASE_URL",
	"FASTREACT_MODEL",
	"FASTREACT_EXTRA_COMMANDS",
	"FASTREACT_NO_METRICS",
	"FASTREACT_LOG_FORMAT",
	"FASTREACT_LOG_LEVEL",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}
	dir, err := resolveProject()
	if err != nil {
		return err
	}

	resolved := config.Resolve(dir, config.Flags{Output: output, Verbose: verbose})
	w := cmd.OutOrStdout()

	if resolved.Output.Value == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	renderConfig(w, dir, resolved)
	return nil
}

func renderConfig(w io.Writer, dir string, resolved *config.ResolvedConfig) {
	fmt.Fprintln(w, "fastreact-agent configuration")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Project: %s\n\n", dir)

	home, project := config.Paths(dir)
	fmt.Fprintln(w, "Config files:")
	for _, f := range []struct{ label, path string }{{"Home:   ", home}, {"Project:", project}} {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Fprintf(w, "  ✓ %s %s\n", f.label, f.path)
		} else {
			fmt.Fprintf(w, "  ✗ %s %s (not found)\n", f.label, f.path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolved values:")
	rows := []struct {
		name  string
		value interface{}
		src   config.Source
	}{
		{"output", resolved.Output.Value, resolved.Output.Source},
		{"state_dir", resolved.StateDir.Value, resolved.StateDir.Source},
		{"verbose", resolved.Verbose.Value, resolved.Verbose.Source},
		{"loop.session_timeout", resolved.SessionTimeout.Value, resolved.SessionTimeout.Source},
		{"loop.pause_window", resolved.PauseWindow.Value, resolved.PauseWindow.Source},
		{"runner.mode", resolved.RunnerMode.Value, resolved.RunnerMode.Source},
		{"runner.command", resolved.RunnerCommand.Value, resolved.RunnerCommand.Source},
		{"runner.stream", resolved.RunnerStream.Value, resolved.RunnerStream.Source},
		{"api.model", resolved.APIModel.Value, resolved.APIModel.Source},
		{"api.base_url", resolved.APIBaseURL.Value, resolved.APIBaseURL.Source},
		{"safety.command_timeout", resolved.CommandTimeout.Value, resolved.CommandTimeout.Source},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-24s %v  (from %s)\n", r.name+":", r.value, r.src)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (if set):")
	anySet := false
	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintf(w, "  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Fprintln(w, "  (none set)")
	}
}
