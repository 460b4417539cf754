// Package toolchain decides which agent runner a run uses and with which
// runtime command.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

const (
	// ModeAuto picks cli when the runtime is installed, else api when a key
	// is available.
	ModeAuto = "auto"
	// ModeCLI drives the runtime CLI as a subprocess.
	ModeCLI = "cli"
	// ModeAPI talks to the Messages API directly.
	ModeAPI = "api"

	// DefaultRunnerMode controls runner selection when no overrides are provided.
	DefaultRunnerMode = ModeAuto
	// DefaultRuntimeCommand is the default runtime process command.
	DefaultRuntimeCommand = "claude"
)

// Toolchain contains the effective runner configuration.
type Toolchain struct {
	RunnerMode     string
	RuntimeCommand string
}

// FlagSet tracks which fields were explicitly set by command-line flags.
type FlagSet struct {
	RunnerMode     bool
	RuntimeCommand bool
}

// ResolveOptions controls deterministic toolchain resolution.
type ResolveOptions struct {
	// Config contains values loaded from config files.
	Config Toolchain
	// FlagValues contains command-line values.
	FlagValues Toolchain
	// FlagSet indicates which FlagValues were explicitly set by the user.
	FlagSet FlagSet
	// EnvLookup returns environment variable values; defaults to os.Getenv.
	EnvLookup func(string) string
}

// NormalizeRunnerMode canonicalizes runner mode values.
func NormalizeRunnerMode(mode string) string {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		return DefaultRunnerMode
	}
	return normalized
}

// ValidateRunnerMode validates the runner mode domain.
func ValidateRunnerMode(mode string) error {
	switch NormalizeRunnerMode(mode) {
	case ModeAuto, ModeCLI, ModeAPI:
		return nil
	default:
		return fmt.Errorf("invalid runner %q (valid: auto|cli|api)", mode)
	}
}

// Resolve resolves runner configuration with precedence:
// flags > env > config > defaults.
func Resolve(opts ResolveOptions) (Toolchain, error) {
	lookup := opts.EnvLookup
	if lookup == nil {
		lookup = os.Getenv
	}

	tc := Toolchain{
		RunnerMode:     DefaultRunnerMode,
		RuntimeCommand: DefaultRuntimeCommand,
	}

	applyConfigField(&tc.RunnerMode, opts.Config.RunnerMode)
	applyConfigField(&tc.RuntimeCommand, opts.Config.RuntimeCommand)

	if v := strings.TrimSpace(lookup("FASTREACT_RUNNER")); v != "" {
		tc.RunnerMode = v
	}
	if v := strings.TrimSpace(lookup("FASTREACT_RUNTIME_COMMAND")); v != "" {
		tc.RuntimeCommand = v
	}

	if opts.FlagSet.RunnerMode {
		tc.RunnerMode = opts.FlagValues.RunnerMode
	}
	if opts.FlagSet.RuntimeCommand {
		tc.RuntimeCommand = opts.FlagValues.RuntimeCommand
	}

	tc.RunnerMode = NormalizeRunnerMode(tc.RunnerMode)
	if err := ValidateRunnerMode(tc.RunnerMode); err != nil {
		return Toolchain{}, err
	}
	tc.RuntimeCommand = normalizeCommand(tc.RuntimeCommand, DefaultRuntimeCommand)

	return tc, nil
}

// Select turns an auto mode into a concrete one. lookPath finds the runtime
// binary; hasAPIKey reports whether the api runner could authenticate.
// Explicit modes are returned unchanged.
func Select(tc Toolchain, lookPath func(string) (string, error), hasAPIKey bool) (string, error) {
	if tc.RunnerMode != ModeAuto {
		return tc.RunnerMode, nil
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if bin := RuntimeBinary(tc.RuntimeCommand); bin != "" {
		if _, err := lookPath(bin); err == nil {
			return ModeCLI, nil
		}
	}
	if hasAPIKey {
		return ModeAPI, nil
	}
	return "", fmt.Errorf("no runner available: %q not found on PATH and no API key set", RuntimeBinary(tc.RuntimeCommand))
}

// RuntimeBinary returns the executable of a runtime command line.
func RuntimeBinary(command string) string {
	words, err := shlex.Split(command)
	if err != nil || len(words) == 0 {
		return strings.TrimSpace(command)
	}
	return words[0]
}

func applyConfigField(dest *string, value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		*dest = trimmed
	}
}

func normalizeCommand(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
