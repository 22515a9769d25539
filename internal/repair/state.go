package repair

import "fmt"

// State is one position in the build-repair state machine. The loop only
// moves along declared transitions, so the attempt budget is enforced by
// structure rather than by convention.
type State int

const (
	StateAssembled State = iota // Project written to the working directory
	StateBuildRunning
	StateBuildPassed // Terminal: build succeeded
	StateBuildFailed
	StateClassifyError
	StateQuickFixApplied // Deterministic edit applied, ready to rebuild
	StateAIFixRequested  // Backend patch applied, ready to rebuild
	StateExhausted       // Terminal: attempt budget spent, project returned as-is
)

// String returns the lowercase name used in logs and persistence.
func (s State) String() string {
	switch s {
	case StateAssembled:
		return "assembled"
	case StateBuildRunning:
		return "build_running"
	case StateBuildPassed:
		return "build_passed"
	case StateBuildFailed:
		return "build_failed"
	case StateClassifyError:
		return "classify_error"
	case StateQuickFixApplied:
		return "quick_fix_applied"
	case StateAIFixRequested:
		return "ai_fix_requested"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateBuildPassed || s == StateExhausted
}

// stateTransitions declares every legal move. AIFixRequested may move
// straight to Exhausted when the backend cannot produce a patch.
var stateTransitions = map[State][]State{
	StateAssembled:       {StateBuildRunning},
	StateBuildRunning:    {StateBuildPassed, StateBuildFailed},
	StateBuildFailed:     {StateClassifyError},
	StateClassifyError:   {StateQuickFixApplied, StateAIFixRequested, StateExhausted},
	StateQuickFixApplied: {StateBuildRunning},
	StateAIFixRequested:  {StateBuildRunning, StateExhausted},
}

func canTransition(from, to State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Strategy names the kind of fix that preceded a build attempt.
type Strategy int

const (
	StrategyNone     Strategy = iota // First build, nothing repaired yet
	StrategyQuickFix                 // Deterministic local edit, no backend call
	StrategyAIFix                    // Backend-generated patch
)

// String returns the lowercase name used in logs and persistence.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyQuickFix:
		return "quick_fix"
	case StrategyAIFix:
		return "ai_fix"
	}
	return "unknown"
}

// Attempt records one build invocation together with the fix that
// preceded it. Attempt numbers are 1-based and never exceed the loop's
// configured maximum.
type Attempt struct {
	Number    int
	Strategy  Strategy // Fix applied before this build, StrategyNone for the first
	Signature string   // Quick-fix signature name, empty otherwise
	Outcome   string   // "passed" or "failed"
	Diff      string   // Patch text of the preceding fix, empty for the first build
	Report    BuildReport
}

// Transition describes one state change, published to observers as the
// loop advances.
type Transition struct {
	From    State
	To      State
	Attempt int    // Builds started so far
	Detail  string // Signature name, error excerpt, or empty
}

func (t Transition) String() string {
	if t.Detail == "" {
		return fmt.Sprintf("%s -> %s (attempt %d)", t.From, t.To, t.Attempt)
	}
	return fmt.Sprintf("%s -> %s (attempt %d): %s", t.From, t.To, t.Attempt, t.Detail)
}
