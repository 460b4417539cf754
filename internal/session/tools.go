package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferdousbhai/create-fastreact/internal/sandbox"
)

// maxReadBytes caps what read_file returns to the model.
const maxReadBytes = 100 * 1024

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

var toolDefinitions = []apiTool{
	{
		Name:        "bash",
		Description: "Run a shell command in the project directory. Commands are checked against an allowlist; rejected commands return output starting with BLOCKED.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
	},
	{
		Name:        "read_file",
		Description: "Read a file relative to the project directory.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	},
	{
		Name:        "write_file",
		Description: "Create or overwrite a file relative to the project directory.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
	},
}

// toolbox executes the model's tool calls for one session.
type toolbox struct {
	root     string
	executor *sandbox.Executor
}

func newToolbox(root string, executor *sandbox.Executor) *toolbox {
	return &toolbox{root: root, executor: executor}
}

func (tb *toolbox) definitions() []apiTool {
	return toolDefinitions
}

// run executes one tool call and returns its output and whether it failed.
func (tb *toolbox) run(ctx context.Context, name string, input json.RawMessage) (string, bool) {
	var args struct {
		Command string `json:"command"`
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return fmt.Sprintf("invalid tool input: %v", err), true
		}
	}

	switch name {
	case "bash":
		res := tb.executor.Execute(ctx, args.Command, tb.root)
		out := res.Output
		if res.ExitCode != 0 && !res.Blocked && !res.TimedOut {
			out = fmt.Sprintf("%s\n[exit code %d]", out, res.ExitCode)
		}
		return out, res.ExitCode != 0
	case "read_file":
		path, err := tb.resolve(args.Path)
		if err != nil {
			return err.Error(), true
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err.Error(), true
		}
		if len(data) > maxReadBytes {
			return string(data[:maxReadBytes]) + fmt.Sprintf("\n... [%d more bytes]", len(data)-maxReadBytes), false
		}
		return string(data), false
	case "write_file":
		path, err := tb.resolve(args.Path)
		if err != nil {
			return err.Error(), true
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err.Error(), true
		}
		if err := os.WriteFile(path, []byte(args.Content), 0644); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), false
	default:
		return fmt.Sprintf("unknown tool %q", name), true
	}
}

// resolve maps a model-supplied path into the project directory. The check
// is made twice: lexically, then again after resolving symlinks, so a link
// inside the project cannot lead a file tool outside it.
func (tb *toolbox) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	root, err := filepath.Abs(tb.root)
	if err != nil {
		return "", err
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	resolved, err := evalExisting(target)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPathEscapes, p, err)
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
	}
	return resolved, nil
}

// within reports whether target is root or lies beneath it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the components that do not exist yet. An entry that exists but
// cannot be resolved (a dangling or looping link) is an error, since writing
// through it would follow the link.
func evalExisting(path string) (string, error) {
	var missing []string
	for p := path; ; {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if _, lerr := os.Lstat(p); lerr == nil {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = parent
	}
}
