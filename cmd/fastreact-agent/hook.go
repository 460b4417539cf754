package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/session"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Agent runtime hook adapters",
	Long: `Hook adapters invoked by the agent runtime, not by people.

The run command writes a settings file that registers
"fastreact-agent hook pre-tool-use" as a PreToolUse hook for Bash, so every
shell command the CLI agent proposes passes the same validator as the
sandbox.`,
}

var hookPreToolUseCmd = &cobra.Command{
	Use:   "pre-tool-use",
	Short: "Validate a PreToolUse payload from stdin",
	Long: `Read a PreToolUse JSON payload from stdin. Allowed calls exit 0 silently.
Blocked Bash commands print the reason to stderr and exit 2, which the
runtime reports back to the agent.`,
	Args: cobra.NoArgs,
	RunE: runHookPreToolUse,
}

func init() {
	hookCmd.AddCommand(hookPreToolUseCmd)
	rootCmd.AddCommand(hookCmd)
}

func runHookPreToolUse(cmd *cobra.Command, args []string) error {
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, nil)
	if err != nil {
		return err
	}

	verdict, err := session.EvaluateHook(cmd.InOrStdin(), newValidator(cfg))
	if err != nil {
		// A payload we cannot read is refused rather than waved through.
		fmt.Fprintf(cmd.ErrOrStderr(), "BLOCKED: %v\n", err)
		return &exitError{code: session.HookExitBlock, err: err}
	}
	if verdict.Allowed {
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "BLOCKED: %s\n", verdict.Reason)
	return &exitError{code: session.HookExitBlock, err: fmt.Errorf("command blocked: %s", verdict.Reason)}
}
