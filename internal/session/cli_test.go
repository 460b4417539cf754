package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakeRuntime writes an executable shell script standing in for the agent CLI.
func fakeRuntime(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-claude")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIRunner_Success(t *testing.T) {
	bin := fakeRuntime(t, `echo "args: $*"; pwd`)
	dir := t.TempDir()
	r := NewCLIRunner(CLIConfig{Command: bin, SettingsPath: "/tmp/settings.json"})

	res := r.Invoke(context.Background(), Request{Mode: "coding", Prompt: "build it", WorkDir: dir})
	if res.Status != StatusContinue {
		t.Fatalf("Invoke = %+v, want continue", res)
	}
	for _, want := range []string{"--print", "--dangerously-skip-permissions", "--settings /tmp/settings.json", "-p build it"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output %q missing %q", res.Output, want)
		}
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Output, resolved) && !strings.Contains(res.Output, dir) {
		t.Errorf("agent did not run in the project dir: %q", res.Output)
	}
	if res.Stdout != res.Output {
		t.Errorf("Stdout = %q, want the raw output", res.Stdout)
	}
}

func TestCLIRunner_CommandWithArgs(t *testing.T) {
	bin := fakeRuntime(t, `echo "$1"`)
	r := NewCLIRunner(CLIConfig{Command: bin + " --model 'opus'"})
	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if strings.TrimSpace(res.Output) != "--model" {
		t.Fatalf("first arg = %q, want --model", res.Output)
	}
}

func TestCLIRunner_VerboseIndentsLines(t *testing.T) {
	bin := fakeRuntime(t, `echo one; printf 'two'`)
	var out bytes.Buffer
	r := NewCLIRunner(CLIConfig{Command: bin, Verbose: true, Out: &out})

	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if res.Status != StatusContinue {
		t.Fatalf("Invoke = %+v", res)
	}
	if got := out.String(); got != "    one\n    two\n" {
		t.Errorf("verbose output = %q", got)
	}
}

func TestCLIRunner_NonZeroExit(t *testing.T) {
	bin := fakeRuntime(t, `echo partial; echo "rate limited" >&2; exit 3`)
	r := NewCLIRunner(CLIConfig{Command: bin})

	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if res.Status != StatusError || res.Err == nil {
		t.Fatalf("Invoke = %+v, want error", res)
	}
	if !strings.Contains(res.Output, "code 3") || !strings.Contains(res.Output, "rate limited") {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Stdout != "partial\n" || !strings.Contains(res.Stderr, "rate limited") {
		t.Errorf("transcripts not kept: stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestCLIRunner_Timeout(t *testing.T) {
	bin := fakeRuntime(t, `sleep 30`)
	r := NewCLIRunner(CLIConfig{Command: bin, Timeout: 200 * time.Millisecond})

	start := time.Now()
	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout did not stop the session")
	}
	var terr *TimeoutError
	if res.Status != StatusError || !errors.As(res.Err, &terr) {
		t.Fatalf("Invoke = %+v, want TimeoutError", res)
	}
	if !strings.Contains(res.Output, "timed out") {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestCLIRunner_ScrubsNestedSessionEnv(t *testing.T) {
	t.Setenv("CLAUDECODE", "1")
	t.Setenv("CLAUDE_CODE_ENTRYPOINT", "cli")
	t.Setenv("FASTREACT_KEEP", "yes")
	bin := fakeRuntime(t, `echo "cc=${CLAUDECODE:-unset} ep=${CLAUDE_CODE_ENTRYPOINT:-unset} keep=$FASTREACT_KEEP"`)

	res := NewCLIRunner(CLIConfig{Command: bin}).Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if strings.TrimSpace(res.Output) != "cc=unset ep=unset keep=yes" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestCLIRunner_MissingBinary(t *testing.T) {
	r := NewCLIRunner(CLIConfig{Command: filepath.Join(t.TempDir(), "nope")})
	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if res.Status != StatusError || !strings.Contains(res.Output, "execution failed") {
		t.Fatalf("Invoke = %+v", res)
	}
}

func TestCLIRunner_EmptyPrompt(t *testing.T) {
	res := NewCLIRunner(CLIConfig{}).Invoke(context.Background(), Request{Prompt: "  "})
	if !errors.Is(res.Err, ErrEmptyPrompt) {
		t.Fatalf("Err = %v, want ErrEmptyPrompt", res.Err)
	}
}

func TestCLIRunner_Stream(t *testing.T) {
	bin := fakeRuntime(t, `cat <<'JSON'
{"type":"system","subtype":"init","session_id":"s1","model":"m1"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at the ledger"},{"type":"tool_use","name":"Bash","input":{"command":"git status"}}]}}
{"type":"result","subtype":"success","result":"Implemented login","num_turns":4,"total_cost_usd":0.5}
JSON`)
	var out bytes.Buffer
	r := NewCLIRunner(CLIConfig{Command: bin, Stream: true, Verbose: true, Out: &out})

	res := r.Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if res.Status != StatusContinue || res.Output != "Implemented login" {
		t.Fatalf("Invoke = %+v", res)
	}
	for _, want := range []string{"    session started (m1)", "    -> Bash: git status", "    Looking at the ledger"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("verbose output missing %q:\n%s", want, out.String())
		}
	}
	if !strings.Contains(res.Stdout, `"type":"result"`) {
		t.Error("raw stream not kept for the log")
	}
}

func TestCLIRunner_StreamErrorResult(t *testing.T) {
	bin := fakeRuntime(t, `echo '{"type":"result","is_error":true,"result":"context window exceeded"}'`)
	res := NewCLIRunner(CLIConfig{Command: bin, Stream: true}).Invoke(context.Background(), Request{Prompt: "p", WorkDir: t.TempDir()})
	if res.Status != StatusError || !strings.Contains(res.Output, "context window exceeded") {
		t.Fatalf("Invoke = %+v", res)
	}
}

func TestIndentWriter(t *testing.T) {
	var out bytes.Buffer
	iw := newIndentWriter(&out, "  ")
	for _, chunk := range []string{"a", "b\nc", "\r\n", "d"} {
		if _, err := iw.Write([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	iw.Flush()
	if got := out.String(); got != "  ab\n  c\n  d\n" {
		t.Errorf("got %q", got)
	}
}
