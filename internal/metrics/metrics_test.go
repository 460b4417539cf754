package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

func TestRecorder_ObserveSession(t *testing.T) {
	r := New()
	r.ObserveSession(&storage.SessionRecord{Mode: "coding", Status: "continue", DurationSeconds: 42, PassingAfter: 3, Total: 10})
	r.ObserveSession(&storage.SessionRecord{Mode: "coding", Status: "continue", DurationSeconds: 61, PassingAfter: 2, Total: 10, RolledBack: true})
	r.ObserveSession(&storage.SessionRecord{Mode: "initializer", Status: "error", DurationSeconds: 5})

	if got := testutil.ToFloat64(r.sessions.WithLabelValues("coding", "continue")); got != 2 {
		t.Errorf("coding/continue sessions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.sessions.WithLabelValues("initializer", "error")); got != 1 {
		t.Errorf("initializer/error sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.rollbacks); got != 1 {
		t.Errorf("rollbacks = %v, want 1", got)
	}
	// Gauges reflect the most recent session.
	if got := testutil.ToFloat64(r.passing); got != 0 {
		t.Errorf("passing = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.total); got != 0 {
		t.Errorf("total = %v, want 0", got)
	}
}

func TestRecorder_ObserveCommand(t *testing.T) {
	r := New()
	r.ObserveCommand(safety.Verdict{Allowed: true})
	r.ObserveCommand(safety.Verdict{Allowed: true})
	r.ObserveCommand(safety.Verdict{Reason: "no"})

	if got := testutil.ToFloat64(r.commands.WithLabelValues("allowed")); got != 2 {
		t.Errorf("allowed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.commands.WithLabelValues("blocked")); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.SetProgress(4, 8)
	path := filepath.Join(t.TempDir(), "nested", "metrics.prom")

	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"fastreact_agent_features_passing 4",
		"fastreact_agent_features_total 8",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.SetProgress(1, 1)
	if got := testutil.ToFloat64(b.passing); got != 0 {
		t.Errorf("second recorder saw first recorder's gauge: %v", got)
	}
}
