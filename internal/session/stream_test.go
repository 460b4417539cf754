package session

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStream(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"abc","model":"claude-x"}`,
		`not json`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"a.go"}}]}}`,
		``,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"result","result":"done","num_turns":3,"total_cost_usd":0.25}`,
	}, "\n")

	var events int
	got := ParseStream(strings.NewReader(input), func(StreamEvent, StreamProgress) { events++ })
	want := StreamProgress{
		SessionID: "abc",
		Model:     "claude-x",
		ToolCount: 2,
		LastTool:  "Bash",
		NumTurns:  3,
		CostUSD:   0.25,
		Result:    "done",
		Done:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseStream mismatch (-want +got):\n%s", diff)
	}
	if events != 4 {
		t.Errorf("onEvent called %d times, want 4", events)
	}
}

func TestParseStream_NoTrailingNewline(t *testing.T) {
	got := ParseStream(strings.NewReader(`{"type":"result","result":"ok"}`), nil)
	if !got.Done || got.Result != "ok" {
		t.Fatalf("got %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize("  a\n  b  ", 10); got != "a b" {
		t.Errorf("summarize = %q", got)
	}
	if got := summarize(strings.Repeat("x", 20), 10); got != "xxxxxxx..." {
		t.Errorf("summarize = %q", got)
	}
}
