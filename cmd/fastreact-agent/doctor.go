package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/config"
	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/toolchain"
	"github.com/ferdousbhai/create-fastreact/internal/worker"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the agent can run",
	Long: `Run health checks before starting the loop.

A runner is required: either the agent CLI on PATH or an API key for the
api runner. Project checks are reported as warnings.

Examples:
  fastreact-agent doctor
  fastreact-agent doctor --json`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output results as JSON")
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "warn", "fail"
	Detail   string `json:"detail"`
	Required bool   `json:"required"`
}

type doctorOutput struct {
	Checks  []doctorCheck `json:"checks"`
	Result  string        `json:"result"` // "HEALTHY", "DEGRADED", "UNHEALTHY"
	Summary string        `json:"summary"`
}

// runtimeVersionTimeout bounds the `<runtime> --version` probe.
const runtimeVersionTimeout = 5 * time.Second

// lookPathFn and runtimeVersionFn are seams for tests.
var (
	lookPathFn       = exec.LookPath
	runtimeVersionFn = runtimeVersion
)

func runDoctor(cmd *cobra.Command, args []string) error {
	dir, err := resolveProject()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result := computeResult(gatherDoctorChecks(ctx, dir, cfg))
	w := cmd.OutOrStdout()

	if doctorJSON || cfg.Output == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal doctor output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		renderDoctorTable(w, result)
	}

	if hasRequiredFailure(result.Checks) {
		return fmt.Errorf("doctor failed: one or more required checks did not pass")
	}
	return nil
}

func gatherDoctorChecks(ctx context.Context, dir string, cfg *config.Config) []doctorCheck {
	// Probes are independent; the runtime --version call dominates.
	probes := []worker.Task[doctorCheck]{
		func(ctx context.Context) (doctorCheck, error) { return checkRuntimeCLI(ctx, cfg.Runner.Command), nil },
		func(context.Context) (doctorCheck, error) { return checkAPIKey(cfg), nil },
		func(context.Context) (doctorCheck, error) { return checkLedger(dir), nil },
		func(context.Context) (doctorCheck, error) { return checkStateDir(cfg.StatePath(dir)), nil },
	}
	results := worker.NewPool[doctorCheck](len(probes)).Run(ctx, probes)
	found := make([]doctorCheck, len(results))
	for i, r := range results {
		found[i] = r.Value
		if r.Err != nil {
			found[i] = doctorCheck{Name: fmt.Sprintf("check %d", i+1), Status: "fail", Detail: r.Err.Error()}
		}
	}
	cli, api, ledgerCheck, stateDir := found[0], found[1], found[2], found[3]

	return []doctorCheck{
		{Name: "fastreact-agent", Status: "pass", Detail: "v" + version, Required: true},
		cli,
		api,
		checkRunner(cfg.Runner.Mode, cli, api),
		ledgerCheck,
		stateDir,
	}
}

func runtimeVersion(ctx context.Context, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, runtimeVersionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func checkRuntimeCLI(ctx context.Context, command string) doctorCheck {
	bin := toolchain.RuntimeBinary(command)
	check := doctorCheck{Name: "Agent CLI", Required: false}
	if _, err := lookPathFn(bin); err != nil {
		check.Status = "warn"
		check.Detail = fmt.Sprintf("%s not found on PATH - install Claude Code: https://docs.anthropic.com/en/docs/claude-code", bin)
		return check
	}
	v, err := runtimeVersionFn(ctx, bin)
	if err != nil {
		check.Status = "warn"
		check.Detail = fmt.Sprintf("%s --version failed: %v", bin, err)
		return check
	}
	check.Status = "pass"
	check.Detail = fmt.Sprintf("%s (%s)", bin, v)
	return check
}

func checkAPIKey(cfg *config.Config) doctorCheck {
	if cfg.APIKey() == "" {
		return doctorCheck{Name: "API key", Status: "warn", Detail: cfg.API.KeyEnv + " not set"}
	}
	return doctorCheck{Name: "API key", Status: "pass", Detail: cfg.API.KeyEnv + " set (model " + cfg.API.Model + ")"}
}

// checkRunner verifies that the configured runner mode can be served.
func checkRunner(mode string, cli, api doctorCheck) doctorCheck {
	check := doctorCheck{Name: "Runner", Required: true}
	cliOK, apiOK := cli.Status == "pass", api.Status == "pass"
	switch toolchain.NormalizeRunnerMode(mode) {
	case toolchain.ModeCLI:
		check.Status, check.Detail = statusFor(cliOK), "cli"
	case toolchain.ModeAPI:
		check.Status, check.Detail = statusFor(apiOK), "api"
	default:
		switch {
		case cliOK:
			check.Status, check.Detail = "pass", "auto -> cli"
		case apiOK:
			check.Status, check.Detail = "pass", "auto -> api"
		default:
			check.Status, check.Detail = "fail", "auto: neither the agent CLI nor an API key is available"
		}
	}
	return check
}

func statusFor(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func checkLedger(dir string) doctorCheck {
	check := doctorCheck{Name: "Feature list", Required: false}
	l, err := ledger.Load(ledger.PathFor(dir))
	var corrupt *ledger.CorruptError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		check.Status, check.Detail = "warn", "no feature_list.json yet - run 'fastreact-agent run \"<instructions>\"'"
	case errors.As(err, &corrupt):
		check.Status, check.Detail = "fail", corrupt.Error()
	case err != nil:
		check.Status, check.Detail = "fail", err.Error()
	default:
		passing, total := l.Progress()
		check.Status, check.Detail = "pass", fmt.Sprintf("%d/%d features passing", passing, total)
	}
	return check
}

func checkStateDir(dir string) doctorCheck {
	check := doctorCheck{Name: "State dir", Required: false}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		check.Status, check.Detail = "fail", err.Error()
		return check
	}
	f, err := os.CreateTemp(dir, ".doctor-")
	if err != nil {
		check.Status, check.Detail = "fail", fmt.Sprintf("%s not writable: %v", dir, err)
		return check
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	check.Status, check.Detail = "pass", dir
	return check
}

func computeResult(checks []doctorCheck) doctorOutput {
	var fails, warns int
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}
	out := doctorOutput{Checks: checks}
	switch {
	case hasRequiredFailure(checks):
		out.Result = "UNHEALTHY"
	case fails > 0:
		out.Result = "DEGRADED"
	default:
		out.Result = "HEALTHY"
	}
	out.Summary = fmt.Sprintf("%d/%d checks passed", len(checks)-fails-warns, len(checks))
	if warns > 0 {
		out.Summary += fmt.Sprintf(", %d warning(s)", warns)
	}
	if fails > 0 {
		out.Summary += fmt.Sprintf(", %d failed", fails)
	}
	return out
}

// doctorStatusIcon returns the display icon for a check status.
func doctorStatusIcon(status string) string {
	switch status {
	case "pass":
		return "✓"
	case "warn":
		return "!"
	case "fail":
		return "✗"
	}
	return "?"
}

// renderDoctorTable writes the formatted doctor output table.
func renderDoctorTable(w io.Writer, output doctorOutput) {
	fmt.Fprintln(w, "fastreact-agent doctor")
	fmt.Fprintln(w, strings.Repeat("─", 22))

	maxName := 0
	for _, c := range output.Checks {
		if len(c.Name) > maxName {
			maxName = len(c.Name)
		}
	}
	for _, c := range output.Checks {
		padding := strings.Repeat(" ", maxName-len(c.Name))
		fmt.Fprintf(w, "%s %s%s  %s\n", doctorStatusIcon(c.Status), c.Name, padding, c.Detail)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", output.Summary)
}

// hasRequiredFailure returns true if any required check has failed.
func hasRequiredFailure(checks []doctorCheck) bool {
	for _, c := range checks {
		if c.Required && c.Status == "fail" {
			return true
		}
	}
	return false
}
