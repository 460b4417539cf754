package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
)

func TestWriteHookSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", HookSettingsFile)
	if err := WriteHookSettings(path, "/usr/local/bin/fastreact-agent hook pre-tool-use"); err != nil {
		t.Fatalf("WriteHookSettings: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got hookSettings
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("settings are not valid JSON: %v", err)
	}
	pre := got.Hooks["PreToolUse"]
	if len(pre) != 1 || pre[0].Matcher != "Bash" || len(pre[0].Hooks) != 1 {
		t.Fatalf("unexpected settings: %s", data)
	}
	if pre[0].Hooks[0].Type != "command" || !strings.HasSuffix(pre[0].Hooks[0].Command, "hook pre-tool-use") {
		t.Errorf("unexpected hook command: %+v", pre[0].Hooks[0])
	}
}

func TestEvaluateHook(t *testing.T) {
	v := safety.NewValidator(safety.DefaultPolicy())
	tests := []struct {
		name    string
		input   string
		allowed bool
		wantErr bool
	}{
		{"allowed bash", `{"tool_name":"Bash","tool_input":{"command":"pnpm run build"}}`, true, false},
		{"blocked bash", `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"}}`, false, false},
		{"empty bash", `{"tool_name":"Bash","tool_input":{}}`, false, false},
		{"other tool", `{"tool_name":"Write","tool_input":{"file_path":"a"}}`, true, false},
		{"garbage", `{{`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateHook(strings.NewReader(tt.input), v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EvaluateHook error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Allowed != tt.allowed {
				t.Errorf("EvaluateHook = %+v, want allowed=%v", got, tt.allowed)
			}
		})
	}
}
