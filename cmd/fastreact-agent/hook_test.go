package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ferdousbhai/create-fastreact/internal/session"
)

func TestRunHookPreToolUse(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantBlock bool
		wantErr   string
	}{
		{
			name:    "allowed bash",
			payload: `{"tool_name":"Bash","tool_input":{"command":"pnpm run build"}}`,
		},
		{
			name:      "blocked bash",
			payload:   `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"}}`,
			wantBlock: true,
			wantErr:   "BLOCKED: rm -rf is only allowed on",
		},
		{
			name:    "other tools pass through",
			payload: `{"tool_name":"Write","tool_input":{"command":"rm -rf /"}}`,
		},
		{
			name:      "malformed payload",
			payload:   `{"tool_name":`,
			wantBlock: true,
			wantErr:   "BLOCKED: decode hook input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withProject(t)
			var stdout, stderr bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.payload))
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)

			err := runHookPreToolUse(cmd, nil)
			if !tt.wantBlock {
				if err != nil {
					t.Fatalf("runHookPreToolUse() error = %v", err)
				}
				if stderr.Len() != 0 || stdout.Len() != 0 {
					t.Errorf("allowed call should be silent, got stdout=%q stderr=%q", stdout.String(), stderr.String())
				}
				return
			}
			if err == nil {
				t.Fatal("expected the hook to block")
			}
			if got := exitCode(err); got != session.HookExitBlock {
				t.Errorf("exitCode = %d, want %d", got, session.HookExitBlock)
			}
			if !strings.HasPrefix(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want prefix %q", stderr.String(), tt.wantErr)
			}
		})
	}
}
