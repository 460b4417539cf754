package session

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

// HookSettingsFile is the settings file name written under the state dir.
const HookSettingsFile = "hook-settings.json"

// HookExitBlock is the exit code that tells the runtime to refuse a tool call.
const HookExitBlock = 2

type hookSettings struct {
	Hooks map[string][]hookMatcher `json:"hooks"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookCommand `json:"hooks"`
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// WriteHookSettings writes a runtime settings file that routes every Bash
// tool call through command before it runs.
func WriteHookSettings(path, command string) error {
	settings := hookSettings{
		Hooks: map[string][]hookMatcher{
			"PreToolUse": {{
				Matcher: "Bash",
				Hooks:   []hookCommand{{Type: "command", Command: command}},
			}},
		},
	}
	return storage.WriteFileAtomic(path, 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(settings)
	})
}

// HookInput is the PreToolUse payload the runtime sends on stdin.
type HookInput struct {
	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		Command string `json:"command"`
	} `json:"tool_input"`
}

// EvaluateHook decodes a PreToolUse payload and validates the Bash command
// it carries. Other tools are always allowed.
func EvaluateHook(r io.Reader, v *safety.Validator) (safety.Verdict, error) {
	var in HookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return safety.Verdict{}, fmt.Errorf("decode hook input: %w", err)
	}
	if in.ToolName != "Bash" {
		return safety.Verdict{Allowed: true}, nil
	}
	return v.Validate(in.ToolInput.Command), nil
}
