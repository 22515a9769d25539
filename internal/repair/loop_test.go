package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/template"
	"github.com/sitesmith/sitesmith/internal/workdir"
)

// scriptedRunner replays a fixed sequence of build reports, repeating
// the last one if called again.
type scriptedRunner struct {
	mu      sync.Mutex
	reports []BuildReport
	calls   int
}

func (s *scriptedRunner) Run(ctx context.Context, dir string) BuildReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.reports) {
		i = len(s.reports) - 1
	}
	s.calls++
	return s.reports[i]
}

func (s *scriptedRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func passReport() BuildReport {
	return BuildReport{Success: true, ExitCode: 0, Stdout: "compiled successfully"}
}

func newLoopFixture(t *testing.T) (*workdir.Manager, *workdir.Workdir, *project.State) {
	t.Helper()
	manager := workdir.NewManager(workdir.ManagerConfig{Root: t.TempDir()})
	wd, err := manager.Create("loop-test")
	if err != nil {
		t.Fatal(err)
	}
	state, err := project.NewStateFrom(template.Files())
	if err != nil {
		t.Fatal(err)
	}
	return manager, wd, state
}

func TestLoopPassesFirstBuild(t *testing.T) {
	manager, wd, state := newLoopFixture(t)
	runner := &scriptedRunner{reports: []BuildReport{passReport()}}

	loop := NewLoop(LoopConfig{Runner: runner, Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateBuildPassed {
		t.Errorf("State = %s, want build_passed", res.State)
	}
	if res.Feedback != "" {
		t.Errorf("Feedback = %q, want empty", res.Feedback)
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(res.Attempts))
	}
	a := res.Attempts[0]
	if a.Number != 1 || a.Strategy != StrategyNone || a.Outcome != "passed" {
		t.Errorf("attempt = %+v", a)
	}

	// The project was materialized before the build
	if _, err := os.Stat(filepath.Join(wd.Path, "package.json")); err != nil {
		t.Errorf("package.json not written to the working directory: %v", err)
	}
}

// TestLoopQuickFix covers the recognized-signature scenario: the fix is
// applied without any backend call and the next build uses the
// corrected file.
func TestLoopQuickFix(t *testing.T) {
	manager, wd, state := newLoopFixture(t)
	broken := "export default { plugins: { tailwindcss: {} } };"
	if err := state.Put("postcss.config.mjs", broken); err != nil {
		t.Fatal(err)
	}

	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: tailwindPluginError},
		passReport(),
	}}
	mock := &mockBackend{}

	var transitions []string
	loop := NewLoop(LoopConfig{
		Runner:  runner,
		Fixer:   NewFixer(mock),
		Manager: manager,
		Dir:     wd,
		Notify: func(tr Transition) {
			transitions = append(transitions, fmt.Sprintf("%s->%s", tr.From, tr.To))
		},
	})

	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateBuildPassed {
		t.Fatalf("State = %s, want build_passed", res.State)
	}
	if mock.calls() != 0 {
		t.Errorf("backend called %d times for a quick fix, want 0", mock.calls())
	}

	if got, _ := state.Get("postcss.config.mjs"); got != template.PostCSSConfig {
		t.Error("project state not updated with the corrected config")
	}
	disk, err := os.ReadFile(filepath.Join(wd.Path, "postcss.config.mjs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(disk) != template.PostCSSConfig {
		t.Error("working directory not updated with the corrected config")
	}

	if len(res.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(res.Attempts))
	}
	second := res.Attempts[1]
	if second.Strategy != StrategyQuickFix || second.Signature != "tailwind-postcss-plugin" {
		t.Errorf("second attempt = %+v", second)
	}
	if second.Diff == "" {
		t.Error("quick fix recorded no diff")
	}

	want := []string{
		"assembled->build_running",
		"build_running->build_failed",
		"build_failed->classify_error",
		"classify_error->quick_fix_applied",
		"quick_fix_applied->build_running",
		"build_running->build_passed",
	}
	if !reflect.DeepEqual(transitions, want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestLoopAIFix(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	fixedPage := "export default function Home() {\n  return <main>fixed</main>;\n}"
	mock := &mockBackend{onComplete: respondArtifacts(t, []map[string]string{
		{"path": "app/page.tsx", "action": "update", "content": fixedPage},
	})}
	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: "./app/page.tsx\nType error: Unexpected token."},
		passReport(),
	}}

	loop := NewLoop(LoopConfig{Runner: runner, Fixer: NewFixer(mock), Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateBuildPassed {
		t.Fatalf("State = %s, want build_passed", res.State)
	}
	if mock.calls() != 1 {
		t.Errorf("backend called %d times, want 1", mock.calls())
	}

	if got, _ := state.Get("app/page.tsx"); !strings.Contains(got, "fixed") {
		t.Error("ai fix not committed to project state")
	}
	disk, err := os.ReadFile(filepath.Join(wd.Path, "app", "page.tsx"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(disk), "fixed") {
		t.Error("ai fix not written to the working directory")
	}

	second := res.Attempts[1]
	if second.Strategy != StrategyAIFix {
		t.Errorf("Strategy = %s, want ai_fix", second.Strategy)
	}
	if second.Diff == "" {
		t.Error("ai fix recorded no diff")
	}
}

// TestLoopExhausted covers the unrecognized-failure scenario: three
// failing builds stop the loop with feedback attached and the files
// still present.
func TestLoopExhausted(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	mock := &mockBackend{onComplete: respondArtifacts(t, []map[string]string{
		{"path": "app/page.tsx", "action": "update", "content": "export default function Home() { return null; }"},
	})}
	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: "./app/page.tsx\nType error: Property 'x' does not exist."},
	}}

	loop := NewLoop(LoopConfig{Runner: runner, Fixer: NewFixer(mock), Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateExhausted {
		t.Fatalf("State = %s, want exhausted", res.State)
	}
	if runner.callCount() != DefaultMaxAttempts {
		t.Errorf("builds = %d, want exactly %d", runner.callCount(), DefaultMaxAttempts)
	}
	if mock.calls() != DefaultMaxAttempts-1 {
		t.Errorf("backend called %d times, want %d (no fix after the final build)", mock.calls(), DefaultMaxAttempts-1)
	}
	if len(res.Attempts) != DefaultMaxAttempts {
		t.Errorf("recorded %d attempts, want %d", len(res.Attempts), DefaultMaxAttempts)
	}

	if !strings.Contains(res.Feedback, "Type error: Property 'x' does not exist.") {
		t.Errorf("Feedback = %q, want last build error text", res.Feedback)
	}
	if len(state.Snapshot()) == 0 {
		t.Error("project files discarded on exhaustion")
	}
}

func TestLoopQuickFixesShareTheBudget(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	mock := &mockBackend{}
	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: tailwindPluginError},
	}}

	loop := NewLoop(LoopConfig{Runner: runner, Fixer: NewFixer(mock), Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateExhausted {
		t.Fatalf("State = %s, want exhausted", res.State)
	}
	if runner.callCount() != DefaultMaxAttempts {
		t.Errorf("builds = %d, want exactly %d", runner.callCount(), DefaultMaxAttempts)
	}
	if mock.calls() != 0 {
		t.Errorf("backend called %d times, want 0", mock.calls())
	}
}

func TestLoopFixerUnavailable(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	mock := &mockBackend{onComplete: func(ctx context.Context, req backend.Request) (backend.Response, error) {
		return backend.Response{}, backend.ErrMalformedResponse
	}}
	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: "Type error: unknowable"},
	}}

	loop := NewLoop(LoopConfig{Runner: runner, Fixer: NewFixer(mock), Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateExhausted {
		t.Fatalf("State = %s, want exhausted", res.State)
	}
	if runner.callCount() != 1 {
		t.Errorf("builds = %d, want 1 (rebuilding an unchanged project is pointless)", runner.callCount())
	}
	if !strings.Contains(res.Feedback, "ai fix unavailable") {
		t.Errorf("Feedback = %q, want ai fix failure noted", res.Feedback)
	}
	if !strings.Contains(res.Feedback, "Type error: unknowable") {
		t.Errorf("Feedback = %q, want build error retained", res.Feedback)
	}
}

func TestLoopWithoutFixer(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: "Type error: unknowable"},
	}}

	loop := NewLoop(LoopConfig{Runner: runner, Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateExhausted {
		t.Fatalf("State = %s, want exhausted", res.State)
	}
	if runner.callCount() != 1 {
		t.Errorf("builds = %d, want 1", runner.callCount())
	}
}

func TestLoopConfiguredBudget(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	runner := &scriptedRunner{reports: []BuildReport{
		{Success: false, ExitCode: 1, Stderr: tailwindPluginError},
	}}

	loop := NewLoop(LoopConfig{MaxAttempts: 1, Runner: runner, Manager: manager, Dir: wd})
	res, err := loop.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.State != StateExhausted {
		t.Fatalf("State = %s, want exhausted", res.State)
	}
	if runner.callCount() != 1 {
		t.Errorf("builds = %d, want 1", runner.callCount())
	}
}

func TestLoopCancellation(t *testing.T) {
	manager, wd, state := newLoopFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &scriptedRunner{reports: []BuildReport{passReport()}}
	loop := NewLoop(LoopConfig{Runner: runner, Manager: manager, Dir: wd})

	_, err := loop.Run(ctx, state)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
