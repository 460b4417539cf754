// Package session invokes the coding agent for one session.
//
// A Runner takes a composed prompt and blocks until the agent finishes or
// its timeout fires. Two implementations exist: CLIRunner drives the Claude
// Code CLI as a subprocess, APIRunner talks to the Anthropic Messages API and
// executes the agent's shell commands itself through the sandbox. The
// orchestrator picks one at startup and never branches on which it has.
package session

import (
	"context"
	"fmt"
	"time"
)

// Status is the coarse outcome of a session.
type Status string

const (
	// StatusContinue means the agent ran to completion.
	StatusContinue Status = "continue"
	// StatusError means the agent failed, timed out or could not start.
	StatusError Status = "error"
)

// Request is one session invocation.
type Request struct {
	// Mode names the session kind, e.g. "coding". Used for logging only.
	Mode string
	// Prompt is the fully composed prompt.
	Prompt string
	// WorkDir is the project directory the agent works in.
	WorkDir string
}

// Result is what a runner reports back.
type Result struct {
	Status Status
	// Output is the agent's final text on success, or a human readable
	// error message.
	Output string
	// Stdout and Stderr are the raw transcripts kept for the session log.
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Runner invokes the agent.
type Runner interface {
	// Name returns the backend identifier ("cli" or "api").
	Name() string
	// Invoke runs one session and blocks until it ends.
	Invoke(ctx context.Context, req Request) Result
}

func errorResult(err error, stdout, stderr string, d time.Duration) Result {
	return Result{
		Status:   StatusError,
		Output:   err.Error(),
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: d,
		Err:      err,
	}
}

// TimeoutError reports a session that exceeded its timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session timed out (%.0fs)", e.Timeout.Seconds())
}
