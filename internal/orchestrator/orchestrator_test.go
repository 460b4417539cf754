package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
	"github.com/ferdousbhai/create-fastreact/internal/metrics"
	"github.com/ferdousbhai/create-fastreact/internal/session"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

func TestMain(m *testing.M) {
	// signal.Notify starts a process-wide watcher goroutine that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("os/signal.loop"))
}

// fakeRunner plays one step per session; sessions past the script succeed
// without touching anything.
type fakeRunner struct {
	steps    []func(req session.Request) session.Result
	requests []session.Request
}

func (f *fakeRunner) Name() string { return "fake" }

func (f *fakeRunner) Invoke(_ context.Context, req session.Request) session.Result {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.steps) {
		return f.steps[i](req)
	}
	return ok("")
}

func (f *fakeRunner) modes() []string {
	var modes []string
	for _, r := range f.requests {
		modes = append(modes, r.Mode)
	}
	return modes
}

func ok(stdout string) session.Result {
	return session.Result{Status: session.StatusContinue, Output: stdout, Stdout: stdout, Duration: time.Second}
}

type neverPause struct{}

func (neverPause) Wait(context.Context, time.Duration) bool { return false }

type alwaysPause struct{}

func (alwaysPause) Wait(context.Context, time.Duration) bool { return true }

func testPrompts(dir string) *Prompts {
	return &Prompts{ProjectDir: dir, Defaults: fstest.MapFS{
		"system.md":             {Data: []byte("SYSTEM")},
		"initializer_prompt.md": {Data: []byte("INIT")},
		"enhancement_prompt.md": {Data: []byte("ENHANCE")},
		"coding_prompt.md":      {Data: []byte("CODE")},
	}}
}

func feature(desc string, passes bool) ledger.Feature {
	return ledger.Feature{Category: "core", Description: desc, Steps: []string{"check " + desc}, Passes: passes}
}

// saveStep returns a step that writes l as the agent's ledger.
func saveStep(t *testing.T, dir string, l ledger.Ledger) func(session.Request) session.Result {
	return func(session.Request) session.Result {
		if err := ledger.Save(ledger.PathFor(dir), l); err != nil {
			t.Errorf("save ledger: %v", err)
		}
		return ok("done")
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, r session.Runner, opts ...Option) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out), WithPause(neverPause{}), WithPrompts(testPrompts(cfg.ProjectDir))}, opts...)
	o, err := New(cfg, r, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return o, &out
}

func loadLedger(t *testing.T, dir string) ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(ledger.PathFor(dir))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

var ignoreExtra = cmpopts.IgnoreUnexported(ledger.Feature{})

func TestRun_NewProjectToCompletion(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		saveStep(t, dir, ledger.Ledger{feature("login", false), feature("logout", false)}),
		saveStep(t, dir, ledger.Ledger{feature("login", true), feature("logout", true)}),
	}}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Instructions: "Build a todo app"}, r)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateComplete || res.Sessions != 2 {
		t.Fatalf("Outcome = %+v, want COMPLETE after 2 sessions", res)
	}
	if res.Passing != 2 || res.Total != 2 {
		t.Errorf("progress = %d/%d, want 2/2", res.Passing, res.Total)
	}
	if diff := cmp.Diff([]string{"initializer", "coding"}, r.modes()); diff != "" {
		t.Errorf("modes mismatch (-want +got):\n%s", diff)
	}

	want := "SYSTEM\n\n---\n\nINIT\n\n## App Instructions\n\nBuild a todo app"
	if r.requests[0].Prompt != want {
		t.Errorf("initializer prompt = %q, want %q", r.requests[0].Prompt, want)
	}
	if r.requests[1].Prompt != "SYSTEM\n\n---\n\nCODE" {
		t.Errorf("coding prompt = %q", r.requests[1].Prompt)
	}
	if r.requests[0].WorkDir != dir {
		t.Errorf("WorkDir = %q, want %q", r.requests[0].WorkDir, dir)
	}

	for _, s := range []string{
		"SESSION 1: INITIALIZER",
		"SESSION 2: CODING",
		"feature_list.json created/updated!",
		"Completed this session:",
		"+ login",
		"PROJECT COMPLETE!",
		"All 2 features passing",
	} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output missing %q:\n%s", s, out.String())
		}
	}
}

func TestRun_ContinueWithoutLedgerIsFatal(t *testing.T) {
	r := &fakeRunner{}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: t.TempDir(), Continue: true}, r)

	res, err := o.Run(context.Background())
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Run() error = %v, want ErrPrecondition", err)
	}
	if res.State != StateError || len(r.requests) != 0 {
		t.Errorf("Outcome = %+v, invocations = %d; want ERROR with no sessions", res, len(r.requests))
	}
}

func TestRun_FullModeWithoutInstructionsIsFatal(t *testing.T) {
	r := &fakeRunner{}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: t.TempDir()}, r)

	if _, err := o.Run(context.Background()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Run() error = %v, want ErrPrecondition", err)
	}
	if len(r.requests) != 0 {
		t.Error("agent invoked despite failed precondition")
	}
}

func TestRun_MissingPromptIsFatal(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: dir, Instructions: "x"}, r,
		WithPrompts(&Prompts{ProjectDir: dir, Defaults: fstest.MapFS{}}))

	if _, err := o.Run(context.Background()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Run() error = %v, want ErrPrecondition", err)
	}
}

func TestRun_RejectedChangeIsRolledBack(t *testing.T) {
	dir := t.TempDir()
	before := ledger.Ledger{feature("a", false), feature("b", false)}
	if err := ledger.Save(ledger.PathFor(dir), before); err != nil {
		t.Fatal(err)
	}
	// Dropping b and passing a would complete the ledger if it were kept.
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		saveStep(t, dir, ledger.Ledger{feature("a", true)}),
	}}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true, MaxIterations: 1}, r)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State == StateComplete {
		t.Fatal("rolled-back session reported completion")
	}
	if res.State != StatePaused || res.Reason != "max iterations reached" {
		t.Errorf("Outcome = %+v, want PAUSED on max iterations", res)
	}
	if diff := cmp.Diff(before, loadLedger(t, dir), ignoreExtra); diff != "" {
		t.Errorf("committed ledger is not the snapshot (-want +got):\n%s", diff)
	}
	for _, s := range []string{
		"WARNING: Invalid feature_list.json change: features were removed or modified",
		"Restoring previous feature_list.json",
		"Max iterations reached (1)",
	} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output missing %q:\n%s", s, out.String())
		}
	}
}

func TestRun_CodingSessionCannotAddFeatures(t *testing.T) {
	dir := t.TempDir()
	before := ledger.Ledger{feature("a", false)}
	if err := ledger.Save(ledger.PathFor(dir), before); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		saveStep(t, dir, ledger.Ledger{feature("a", true), feature("sneaky", true)}),
	}}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true, MaxIterations: 1}, r)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, loadLedger(t, dir), ignoreExtra); diff != "" {
		t.Errorf("addition was committed (-want +got):\n%s", diff)
	}
}

func TestRun_EnhancementMayAddFeatures(t *testing.T) {
	dir := t.TempDir()
	if err := ledger.Save(ledger.PathFor(dir), ledger.Ledger{feature("a", true)}); err != nil {
		t.Fatal(err)
	}
	grown := ledger.Ledger{feature("a", true), feature("dark mode", false)}
	r := &fakeRunner{steps: []func(session.Request) session.Result{saveStep(t, dir, grown)}}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Instructions: "Add dark mode", MaxIterations: 1}, r)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"enhancement_init"}, r.modes()); diff != "" {
		t.Errorf("modes mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(r.requests[0].Prompt, "SYSTEM\n\n---\n\nENHANCE\n\n## App Instructions\n\nAdd dark mode") {
		t.Errorf("enhancement prompt = %q", r.requests[0].Prompt)
	}
	if diff := cmp.Diff(grown, loadLedger(t, dir), ignoreExtra); diff != "" {
		t.Errorf("enhancement additions not kept (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.String(), "Existing project: Running initializer") {
		t.Errorf("output missing existing-project notice:\n%s", out.String())
	}
}

func TestRun_InitializerRetriedUntilLedgerExists(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		func(session.Request) session.Result { return ok("thinking") },
		saveStep(t, dir, ledger.Ledger{feature("a", false)}),
		saveStep(t, dir, ledger.Ledger{feature("a", true)}),
	}}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Instructions: "x"}, r)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateComplete {
		t.Fatalf("Outcome = %+v, want COMPLETE", res)
	}
	if diff := cmp.Diff([]string{"initializer", "initializer", "coding"}, r.modes()); diff != "" {
		t.Errorf("modes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.String(), "not created - will retry") {
		t.Errorf("output missing retry warning:\n%s", out.String())
	}
}

func TestRun_SessionErrorDoesNotStopLoop(t *testing.T) {
	dir := t.TempDir()
	if err := ledger.Save(ledger.PathFor(dir), ledger.Ledger{feature("a", false)}); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		func(session.Request) session.Result {
			err := &session.TimeoutError{Timeout: 5 * time.Second}
			return session.Result{Status: session.StatusError, Output: err.Error(), Err: err, Duration: 5 * time.Second}
		},
		saveStep(t, dir, ledger.Ledger{feature("a", true)}),
	}}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true}, r)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateComplete || res.Sessions != 2 {
		t.Fatalf("Outcome = %+v, want COMPLETE after 2 sessions", res)
	}
	if !strings.Contains(out.String(), "Error: session timed out (5s)") {
		t.Errorf("output missing session error:\n%s", out.String())
	}
}

func TestRun_PauseBetweenSessions(t *testing.T) {
	dir := t.TempDir()
	if err := ledger.Save(ledger.PathFor(dir), ledger.Ledger{feature("a", false)}); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{}
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true}, r, WithPause(alwaysPause{}))

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StatePaused || res.Sessions != 1 {
		t.Fatalf("Outcome = %+v, want PAUSED after 1 session", res)
	}
	if !strings.Contains(out.String(), "Paused after session 1") ||
		!strings.Contains(out.String(), "Resume with: "+DefaultResumeCommand) {
		t.Errorf("output missing pause notice:\n%s", out.String())
	}
}

func TestRun_CanceledContextStopsAtBoundary(t *testing.T) {
	dir := t.TempDir()
	if err := ledger.Save(ledger.PathFor(dir), ledger.Ledger{feature("a", false)}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		func(session.Request) session.Result {
			cancel()
			return ok("")
		},
	}}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true}, r)

	res, err := o.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StatePaused || res.Reason != "interrupted" || len(r.requests) != 1 {
		t.Errorf("Outcome = %+v after %d sessions, want interrupted after 1", res, len(r.requests))
	}
}

func TestRun_RecordsSessionsAndMetrics(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, storage.DefaultBaseDir)
	store := storage.NewFileStorage(storage.WithBaseDir(stateDir))
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	metricsFile := filepath.Join(stateDir, "metrics.prom")

	r := &fakeRunner{steps: []func(session.Request) session.Result{
		saveStep(t, dir, ledger.Ledger{feature("a", false), feature("b", false)}),
		saveStep(t, dir, ledger.Ledger{feature("a", true), feature("b", true)}),
	}}
	o, _ := newTestOrchestrator(t, Config{ProjectDir: dir, Instructions: "x", MetricsFile: metricsFile}, r,
		WithStorage(store), WithMetrics(metrics.New()))

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	records, err := store.ListRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	last := records[1]
	if last.RunID != res.RunID || last.Number != 2 || last.Mode != "coding" || last.Runner != "fake" {
		t.Errorf("unexpected record: %+v", last)
	}
	if diff := cmp.Diff([]string{"a", "b"}, last.NewlyPassing); diff != "" {
		t.Errorf("NewlyPassing mismatch (-want +got):\n%s", diff)
	}
	if last.PassingBefore != 0 || last.PassingAfter != 2 || last.Total != 2 {
		t.Errorf("progress in record = %d->%d/%d", last.PassingBefore, last.PassingAfter, last.Total)
	}
	if _, err := os.Stat(last.LogPath); err != nil {
		t.Errorf("session log missing: %v", err)
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "fastreact_agent_features_passing 2") {
		t.Errorf("metrics textfile not updated:\n%s", data)
	}
}

func TestRun_PreviewPointsAtLog(t *testing.T) {
	dir := t.TempDir()
	if err := ledger.Save(ledger.PathFor(dir), ledger.Ledger{feature("a", false)}); err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("x", previewChars+10)
	r := &fakeRunner{steps: []func(session.Request) session.Result{
		func(session.Request) session.Result { return ok(long) },
	}}
	store := storage.NewFileStorage(storage.WithBaseDir(filepath.Join(dir, storage.DefaultBaseDir)))
	o, out := newTestOrchestrator(t, Config{ProjectDir: dir, Continue: true, MaxIterations: 1}, r, WithStorage(store))

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "... [10 more chars, see ") || !strings.Contains(out.String(), "_coding.log]") {
		t.Errorf("output missing truncated preview:\n%s", out.String())
	}
}

func TestNew_RequiresRunner(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoRunner) {
		t.Fatalf("New(nil runner) error = %v, want ErrNoRunner", err)
	}
}

func TestStateString(t *testing.T) {
	if StateUpdateProgress.String() != "UPDATE_PROGRESS" || State(99).String() != "UNKNOWN" {
		t.Errorf("unexpected state names: %s %s", StateUpdateProgress, State(99))
	}
}
