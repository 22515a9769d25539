package repair

import "testing"

func TestStateTransitionTable(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateAssembled, StateBuildRunning},
		{StateBuildRunning, StateBuildPassed},
		{StateBuildRunning, StateBuildFailed},
		{StateBuildFailed, StateClassifyError},
		{StateClassifyError, StateQuickFixApplied},
		{StateClassifyError, StateAIFixRequested},
		{StateClassifyError, StateExhausted},
		{StateQuickFixApplied, StateBuildRunning},
		{StateAIFixRequested, StateBuildRunning},
		{StateAIFixRequested, StateExhausted},
	}
	for _, tr := range allowed {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = false, want true", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to State }{
		{StateAssembled, StateBuildPassed},
		{StateBuildPassed, StateBuildRunning},
		{StateExhausted, StateBuildRunning},
		{StateBuildFailed, StateBuildRunning},
		{StateQuickFixApplied, StateExhausted},
		{StateBuildRunning, StateAssembled},
	}
	for _, tr := range forbidden {
		if canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = true, want false", tr.from, tr.to)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for s, want := range map[State]bool{
		StateAssembled:       false,
		StateBuildRunning:    false,
		StateBuildPassed:     true,
		StateBuildFailed:     false,
		StateClassifyError:   false,
		StateQuickFixApplied: false,
		StateAIFixRequested:  false,
		StateExhausted:       true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}

func TestStateAndStrategyStrings(t *testing.T) {
	if got := StateQuickFixApplied.String(); got != "quick_fix_applied" {
		t.Errorf("State.String() = %q", got)
	}
	if got := StrategyAIFix.String(); got != "ai_fix" {
		t.Errorf("Strategy.String() = %q", got)
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("out-of-range State.String() = %q", got)
	}
}

func TestRenderDiff(t *testing.T) {
	diff := renderDiff("postcss.config.mjs", "plugins: { tailwindcss: {} }", "plugins: [\"@tailwindcss/postcss\"]")
	if diff == "" {
		t.Fatal("expected non-empty diff for a real change")
	}
	if got := renderDiff("a.ts", "same", "same"); got != "" {
		t.Errorf("diff of identical content = %q, want empty", got)
	}
}
