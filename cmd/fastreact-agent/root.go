package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ferdousbhai/create-fastreact/internal/config"
	"github.com/ferdousbhai/create-fastreact/pkg/project"
)

var (
	// Global flags
	dryRun     bool
	verbose    bool
	output     string
	cfgFile    string
	projectDir string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fastreact-agent",
	Short: "Autonomous coding loop for FastReact projects",
	Long: `fastreact-agent drives a coding agent through a FastReact project one
session at a time, working down feature_list.json until every feature passes.

Every shell command the agent proposes is checked against a safety policy,
and every change the agent makes to feature_list.json is audited; edits that
remove, rename or (outside initializer sessions) add features are rolled back.

Core Commands:
  run          Run the session loop
  status       Show feature progress and recent sessions
  check        Validate a shell command against the safety policy
  exec         Run a shell command through the sandbox
  doctor       Check that a runner is available
  config       Show resolved configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Commands that set an exit code have already reported the problem.
		var ee *exitError
		if !errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would happen without executing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Stream agent output and enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <project>/.fastreact-agent/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "Project directory (default: detected from the working directory)")
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("FASTREACT_CONFIG", path)
}

// resolveProject returns the project directory for this invocation.
func resolveProject() (string, error) {
	dir, err := project.Resolve(projectDir, "")
	if err != nil {
		return "", fmt.Errorf("resolve project: %w", err)
	}
	return dir, nil
}

// loadConfig loads configuration for dir with the global flags applied.
func loadConfig(dir string, overrides *config.Config) (*config.Config, error) {
	if overrides == nil {
		overrides = &config.Config{}
	}
	overrides.Output = output
	overrides.Verbose = overrides.Verbose || verbose
	return config.Load(dir, overrides)
}

// newLogger builds the structured logger. Logs go to stderr so they never
// mix with progress output; FASTREACT_LOG_FORMAT=json switches to JSON.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !strings.EqualFold(os.Getenv("FASTREACT_LOG_FORMAT"), "json") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if lvl := os.Getenv("FASTREACT_LOG_LEVEL"); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("FASTREACT_LOG_LEVEL: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}
