package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/sandbox"
)

// DefaultRuntimeCommand is the agent CLI used when none is configured.
const DefaultRuntimeCommand = "claude"

// DefaultTimeout bounds one agent session.
const DefaultTimeout = 1200 * time.Second

// CLIConfig configures a CLIRunner.
type CLIConfig struct {
	// Command is the runtime command line, e.g. "claude" or
	// "claude --model opus". Split with shell quoting rules.
	Command string
	Timeout time.Duration
	// Verbose echoes the agent's output as it arrives.
	Verbose bool
	// Stream switches to --output-format stream-json and reports tool use
	// as it happens.
	Stream bool
	// SettingsPath, when set, is passed with --settings so the runtime picks
	// up the command-validation hook.
	SettingsPath string
	// Out receives verbose output. Defaults to os.Stdout.
	Out    io.Writer
	Logger *zap.Logger
}

// CLIRunner runs each session as a Claude Code CLI subprocess.
type CLIRunner struct {
	cfg CLIConfig
}

// NewCLIRunner returns a runner with defaults filled in.
func NewCLIRunner(cfg CLIConfig) *CLIRunner {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultRuntimeCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CLIRunner{cfg: cfg}
}

// Name implements Runner.
func (r *CLIRunner) Name() string { return "cli" }

// argv builds the full command line for prompt.
func (r *CLIRunner) argv(prompt string) ([]string, error) {
	base, err := shlex.Split(r.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse runtime command %q: %w", r.cfg.Command, err)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("runtime command is empty")
	}
	args := append(base, "--print", "--dangerously-skip-permissions")
	if r.cfg.Stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	if r.cfg.SettingsPath != "" {
		args = append(args, "--settings", r.cfg.SettingsPath)
	}
	return append(args, "-p", prompt), nil
}

// Invoke implements Runner.
func (r *CLIRunner) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	if strings.TrimSpace(req.Prompt) == "" {
		return errorResult(ErrEmptyPrompt, "", "", 0)
	}
	argv, err := r.argv(req.Prompt)
	if err != nil {
		return errorResult(err, "", "", 0)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = cleanEnvNoClaude()
	sandbox.IsolateProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	var (
		wg       sync.WaitGroup
		progress StreamProgress
		pw       *io.PipeWriter
		iw       *indentWriter
	)
	switch {
	case r.cfg.Stream:
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		cmd.Stdout = io.MultiWriter(&stdout, pw)
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress = ParseStream(pr, r.streamObserver())
			_, _ = io.Copy(io.Discard, pr) //nolint:errcheck // drain so the writer never blocks
		}()
	case r.cfg.Verbose:
		iw = newIndentWriter(r.cfg.Out, "    ")
		cmd.Stdout = io.MultiWriter(&stdout, iw)
	default:
		cmd.Stdout = &stdout
	}

	r.cfg.Logger.Debug("starting agent session",
		zap.String("mode", req.Mode),
		zap.String("runtime", argv[0]),
		zap.String("dir", req.WorkDir),
		zap.Duration("timeout", r.cfg.Timeout))

	runErr := cmd.Run()
	if pw != nil {
		_ = pw.Close() //nolint:errcheck // signals EOF to the parser
		wg.Wait()
	}
	if iw != nil {
		iw.Flush()
	}
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		terr := &TimeoutError{Timeout: r.cfg.Timeout}
		return errorResult(terr, stdout.String(), "TIMEOUT after "+r.cfg.Timeout.String(), duration)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			err := fmt.Errorf("%s exited with code %d: %s", argv[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			return errorResult(err, stdout.String(), stderr.String(), duration)
		}
		err := fmt.Errorf("%s execution failed: %w", argv[0], runErr)
		return errorResult(err, stdout.String(), stderr.String(), duration)
	}

	output := stdout.String()
	if r.cfg.Stream {
		output = progress.Result
		if progress.IsError {
			err := fmt.Errorf("agent reported an error: %s", summarize(progress.Result, 200))
			return errorResult(err, stdout.String(), stderr.String(), duration)
		}
	}
	return Result{
		Status:   StatusContinue,
		Output:   output,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
}

func (r *CLIRunner) streamObserver() func(StreamEvent, StreamProgress) {
	if !r.cfg.Verbose {
		return nil
	}
	out := r.cfg.Out
	return func(ev StreamEvent, _ StreamProgress) {
		for _, line := range describeEvent(ev) {
			fmt.Fprintf(out, "    %s\n", line)
		}
	}
}

// cleanEnvNoClaude returns the environment without variables that make a
// nested Claude Code process believe it is already inside a session.
func cleanEnvNoClaude() []string {
	var env []string
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "CLAUDECODE=") || strings.HasPrefix(e, "CLAUDE_CODE_") {
			continue
		}
		env = append(env, e)
	}
	return env
}

// indentWriter prefixes every complete line with indent.
type indentWriter struct {
	w      io.Writer
	indent string
	buf    []byte
}

func newIndentWriter(w io.Writer, indent string) *indentWriter {
	return &indentWriter{w: w, indent: indent}
}

func (iw *indentWriter) Write(p []byte) (int, error) {
	iw.buf = append(iw.buf, p...)
	for {
		idx := bytes.IndexByte(iw.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(iw.buf[:idx]), "\r")
		iw.buf = iw.buf[idx+1:]
		if _, err := fmt.Fprintf(iw.w, "%s%s\n", iw.indent, line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes any trailing partial line.
func (iw *indentWriter) Flush() {
	if len(iw.buf) == 0 {
		return
	}
	fmt.Fprintf(iw.w, "%s%s\n", iw.indent, strings.TrimRight(string(iw.buf), "\r"))
	iw.buf = nil
}
