// Package config provides configuration management for fastreact-agent.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (FASTREACT_*)
// 3. Project config (.fastreact-agent/config.yaml in the project directory)
// 4. Home config (~/.fastreact-agent/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all fastreact-agent configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// StateDir is the agent's state directory, relative to the project
	// (default: .fastreact-agent).
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Loop settings
	Loop LoopConfig `yaml:"loop" json:"loop"`

	// Runner settings
	Runner RunnerConfig `yaml:"runner" json:"runner"`

	// API settings, used by the api runner
	API APIConfig `yaml:"api" json:"api"`

	// Safety settings for the command validator and sandbox
	Safety SafetyConfig `yaml:"safety" json:"safety"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LoopConfig holds session loop settings.
type LoopConfig struct {
	// MaxIterations stops the loop after this many sessions (0 = unlimited).
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// SessionTimeout bounds one agent session. Default: 1200s.
	SessionTimeout string `yaml:"session_timeout" json:"session_timeout"`
	// PauseWindow is how long the loop waits for a pause request between
	// sessions. Default: 3s.
	PauseWindow string `yaml:"pause_window" json:"pause_window"`
}

// RunnerConfig holds agent runner settings.
type RunnerConfig struct {
	// Mode selects the runner. Values: "auto" (default), "cli", "api".
	Mode string `yaml:"mode" json:"mode"`
	// Command is the CLI used to spawn sessions. Default: "claude".
	Command string `yaml:"command" json:"command"`
	// Stream enables stream-json progress reporting in the cli runner.
	Stream bool `yaml:"stream" json:"stream"`
	// NoHook disables installing the command-validation hook for the cli
	// runner.
	NoHook bool `yaml:"no_hook" json:"no_hook"`
}

// APIConfig holds Anthropic API settings.
type APIConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Model     string `yaml:"model" json:"model"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
	MaxTurns  int    `yaml:"max_turns" json:"max_turns"`
	// KeyEnv names the environment variable holding the API key. The key
	// itself is never stored in config files.
	KeyEnv string `yaml:"key_env" json:"key_env"`
}

// SafetyConfig holds command safety settings.
type SafetyConfig struct {
	// ExtraCommands extends the executable allowlist. The structural rules
	// (rm, kill, remote execution) still apply to them.
	ExtraCommands []string `yaml:"extra_commands" json:"extra_commands"`
	// CommandTimeout bounds one sandboxed command. Default: 120s.
	CommandTimeout string `yaml:"command_timeout" json:"command_timeout"`
	// MaxOutputBytes caps captured command output. Default: 10240.
	MaxOutputBytes int `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Disabled turns off the metrics textfile.
	Disabled bool `yaml:"disabled" json:"disabled"`
	// File is the textfile path, relative to the state dir. Default: metrics.prom.
	File string `yaml:"file" json:"file"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput         = "table"
	defaultStateDir       = ".fastreact-agent"
	defaultSessionTimeout = "1200s"
	defaultPauseWindow    = "3s"
	defaultRunnerMode     = "auto"
	defaultRunnerCommand  = "claude"
	defaultAPIBaseURL     = "https://api.anthropic.com"
	defaultAPIModel       = "claude-sonnet-4-5"
	defaultAPIKeyEnv      = "ANTHROPIC_API_KEY"
	defaultCommandTimeout = "120s"
	defaultMetricsFile    = "metrics.prom"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:   defaultOutput,
		StateDir: defaultStateDir,
		Verbose:  false,
		Loop: LoopConfig{
			MaxIterations:  0,
			SessionTimeout: defaultSessionTimeout,
			PauseWindow:    defaultPauseWindow,
		},
		Runner: RunnerConfig{
			Mode:    defaultRunnerMode,
			Command: defaultRunnerCommand,
		},
		API: APIConfig{
			BaseURL:   defaultAPIBaseURL,
			Model:     defaultAPIModel,
			MaxTokens: 8192,
			MaxTurns:  50,
			KeyEnv:    defaultAPIKeyEnv,
		},
		Safety: SafetyConfig{
			CommandTimeout: defaultCommandTimeout,
			MaxOutputBytes: 10 * 1024,
		},
		Metrics: MetricsConfig{
			File: defaultMetricsFile,
		},
	}
}

// Load loads configuration for the project at projectDir with proper
// precedence. Priority: flags > env > project > home > defaults
func Load(projectDir string, flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("home config: %w", err)
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, err := loadFromPath(projectConfigPath(projectDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("project config: %w", err)
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the loop.
func (c *Config) Validate() error {
	if _, err := parseDuration("loop.session_timeout", c.Loop.SessionTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("loop.pause_window", c.Loop.PauseWindow); err != nil {
		return err
	}
	if _, err := parseDuration("safety.command_timeout", c.Safety.CommandTimeout); err != nil {
		return err
	}
	if c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop.max_iterations must not be negative, got %d", c.Loop.MaxIterations)
	}
	switch c.Output {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output %q (valid: table|json)", c.Output)
	}
	return nil
}

// SessionTimeout returns the parsed loop.session_timeout.
func (c *Config) SessionTimeout() time.Duration {
	d, _ := parseDuration("", c.Loop.SessionTimeout)
	return d
}

// PauseWindow returns the parsed loop.pause_window.
func (c *Config) PauseWindow() time.Duration {
	d, _ := parseDuration("", c.Loop.PauseWindow)
	return d
}

// CommandTimeout returns the parsed safety.command_timeout.
func (c *Config) CommandTimeout() time.Duration {
	d, _ := parseDuration("", c.Safety.CommandTimeout)
	return d
}

// APIKey reads the key from the configured environment variable.
func (c *Config) APIKey() string {
	name := c.API.KeyEnv
	if name == "" {
		name = defaultAPIKeyEnv
	}
	return strings.TrimSpace(os.Getenv(name))
}

// StatePath joins elem onto the state directory of projectDir.
func (c *Config) StatePath(projectDir string, elem ...string) string {
	base := c.StateDir
	if !filepath.IsAbs(base) {
		base = filepath.Join(projectDir, base)
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

// parseDuration accepts Go durations ("90s", "20m") and bare seconds ("1200").
func parseDuration(field, v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", field, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", field, v)
	}
	return d, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fastreact-agent", "config.yaml")
}

// Paths returns the home and project config files that Load consults.
func Paths(projectDir string) (home, project string) {
	return homeConfigPath(), projectConfigPath(projectDir)
}

// projectConfigPath returns the project config path.
func projectConfigPath(projectDir string) string {
	if override := strings.TrimSpace(os.Getenv("FASTREACT_CONFIG")); override != "" {
		return override
	}
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		projectDir = cwd
	}
	return filepath.Join(projectDir, ".fastreact-agent", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("FASTREACT_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("FASTREACT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v, ok := getEnvBool("FASTREACT_VERBOSE"); ok && v {
		cfg.Verbose = true
	}
	if v := os.Getenv("FASTREACT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxIterations = n
		}
	}
	if v := os.Getenv("FASTREACT_SESSION_TIMEOUT"); v != "" {
		cfg.Loop.SessionTimeout = v
	}
	if v := os.Getenv("FASTREACT_PAUSE_WINDOW"); v != "" {
		cfg.Loop.PauseWindow = v
	}
	if v := os.Getenv("FASTREACT_RUNNER"); v != "" {
		cfg.Runner.Mode = v
	}
	if v := os.Getenv("FASTREACT_RUNTIME_COMMAND"); v != "" {
		cfg.Runner.Command = v
	}
	if v, ok := getEnvBool("FASTREACT_STREAM"); ok && v {
		cfg.Runner.Stream = true
	}
	if v, ok := getEnvBool("FASTREACT_NO_HOOK"); ok && v {
		cfg.Runner.NoHook = true
	}
	if v := os.Getenv("FASTREACT_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("FASTREACT_MODEL"); v != "" {
		cfg.API.Model = v
	}
	if v := os.Getenv("FASTREACT_EXTRA_COMMANDS"); v != "" {
		cfg.Safety.ExtraCommands = append(cfg.Safety.ExtraCommands, splitList(v)...)
	}
	if v, ok := getEnvBool("FASTREACT_NO_METRICS"); ok && v {
		cfg.Metrics.Disabled = true
	}
	return cfg
}

// splitList splits a comma or whitespace separated list.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans only ever switch on: a lower layer cannot be turned off by a
// higher one that leaves the field unset.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.StateDir, src.StateDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeLoop(&dst.Loop, &src.Loop)
	mergeRunner(&dst.Runner, &src.Runner)
	mergeAPI(&dst.API, &src.API)
	mergeSafety(&dst.Safety, &src.Safety)
	mergeMetrics(&dst.Metrics, &src.Metrics)

	return dst
}

func mergeLoop(dst, src *LoopConfig) {
	mergeInt(&dst.MaxIterations, src.MaxIterations)
	mergeStr(&dst.SessionTimeout, src.SessionTimeout)
	mergeStr(&dst.PauseWindow, src.PauseWindow)
}

func mergeRunner(dst, src *RunnerConfig) {
	mergeStr(&dst.Mode, src.Mode)
	mergeStr(&dst.Command, src.Command)
	if src.Stream {
		dst.Stream = true
	}
	if src.NoHook {
		dst.NoHook = true
	}
}

func mergeAPI(dst, src *APIConfig) {
	mergeStr(&dst.BaseURL, src.BaseURL)
	mergeStr(&dst.Model, src.Model)
	mergeInt(&dst.MaxTokens, src.MaxTokens)
	mergeInt(&dst.MaxTurns, src.MaxTurns)
	mergeStr(&dst.KeyEnv, src.KeyEnv)
}

// mergeSafety unions the extra command lists across layers.
func mergeSafety(dst, src *SafetyConfig) {
	dst.ExtraCommands = append(dst.ExtraCommands, src.ExtraCommands...)
	mergeStr(&dst.CommandTimeout, src.CommandTimeout)
	mergeInt(&dst.MaxOutputBytes, src.MaxOutputBytes)
}

func mergeMetrics(dst, src *MetricsConfig) {
	if src.Disabled {
		dst.Disabled = true
	}
	mergeStr(&dst.File, src.File)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.fastreact-agent/config.yaml"
	SourceProject Source = ".fastreact-agent/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// resolveBoolField resolves an OR-merged boolean through the chain.
func resolveBoolField(home, project, env, flag bool) resolved {
	result := resolved{Value: false, Source: SourceDefault}
	if home {
		result = resolved{Value: true, Source: SourceHome}
	}
	if project {
		result = resolved{Value: true, Source: SourceProject}
	}
	if env {
		result = resolved{Value: true, Source: SourceEnv}
	}
	if flag {
		result = resolved{Value: true, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output         resolved `json:"output"`
	StateDir       resolved `json:"state_dir"`
	Verbose        resolved `json:"verbose"`
	SessionTimeout resolved `json:"session_timeout"`
	PauseWindow    resolved `json:"pause_window"`
	RunnerMode     resolved `json:"runner_mode"`
	RunnerCommand  resolved `json:"runner_command"`
	RunnerStream   resolved `json:"runner_stream"`
	APIModel       resolved `json:"api_model"`
	APIBaseURL     resolved `json:"api_base_url"`
	CommandTimeout resolved `json:"command_timeout"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Flags carries the command-line values that take part in resolution.
type Flags struct {
	Output         string
	Verbose        bool
	SessionTimeout string
	RunnerMode     string
	RunnerCommand  string
	Stream         bool
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(projectDir string, flags Flags) *ResolvedConfig {
	home, _ := loadFromPath(homeConfigPath())
	project, _ := loadFromPath(projectConfigPath(projectDir))
	if home == nil {
		home = &Config{}
	}
	if project == nil {
		project = &Config{}
	}

	envOutput, _ := getEnvString("FASTREACT_OUTPUT")
	envStateDir, _ := getEnvString("FASTREACT_STATE_DIR")
	envVerbose, _ := getEnvBool("FASTREACT_VERBOSE")
	envSessionTimeout, _ := getEnvString("FASTREACT_SESSION_TIMEOUT")
	envPauseWindow, _ := getEnvString("FASTREACT_PAUSE_WINDOW")
	envRunnerMode, _ := getEnvString("FASTREACT_RUNNER")
	envRunnerCommand, _ := getEnvString("FASTREACT_RUNTIME_COMMAND")
	envStream, _ := getEnvBool("FASTREACT_STREAM")
	envModel, _ := getEnvString("FASTREACT_MODEL")
	envBaseURL, _ := getEnvString("FASTREACT_API_BASE_URL")

	return &ResolvedConfig{
		Output:         resolveStringField(home.Output, project.Output, envOutput, flags.Output, defaultOutput),
		StateDir:       resolveStringField(home.StateDir, project.StateDir, envStateDir, "", defaultStateDir),
		Verbose:        resolveBoolField(home.Verbose, project.Verbose, envVerbose, flags.Verbose),
		SessionTimeout: resolveStringField(home.Loop.SessionTimeout, project.Loop.SessionTimeout, envSessionTimeout, flags.SessionTimeout, defaultSessionTimeout),
		PauseWindow:    resolveStringField(home.Loop.PauseWindow, project.Loop.PauseWindow, envPauseWindow, "", defaultPauseWindow),
		RunnerMode:     resolveStringField(home.Runner.Mode, project.Runner.Mode, envRunnerMode, flags.RunnerMode, defaultRunnerMode),
		RunnerCommand:  resolveStringField(home.Runner.Command, project.Runner.Command, envRunnerCommand, flags.RunnerCommand, defaultRunnerCommand),
		RunnerStream:   resolveBoolField(home.Runner.Stream, project.Runner.Stream, envStream, flags.Stream),
		APIModel:       resolveStringField(home.API.Model, project.API.Model, envModel, "", defaultAPIModel),
		APIBaseURL:     resolveStringField(home.API.BaseURL, project.API.BaseURL, envBaseURL, "", defaultAPIBaseURL),
		CommandTimeout: resolveStringField(home.Safety.CommandTimeout, project.Safety.CommandTimeout, "", "", defaultCommandTimeout),
	}
}
