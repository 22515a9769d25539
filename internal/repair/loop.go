package repair

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/workdir"
)

// DefaultMaxAttempts bounds build invocations per run.
const DefaultMaxAttempts = 3

// LoopConfig configures one build-repair loop.
type LoopConfig struct {
	MaxAttempts int    // Build budget, DefaultMaxAttempts when zero
	Runner      Runner // External build invocation
	Fixer       *Fixer // Optional; without it unrecognized failures exhaust immediately
	Manager     *workdir.Manager
	Dir         *workdir.Workdir
	Notify      func(Transition) // Optional observer for every state change
}

// Result is the terminal outcome of a loop run. Files always remain in
// the project state, passing build or not.
type Result struct {
	State    State // StateBuildPassed or StateExhausted
	Attempts []Attempt
	Feedback string // Non-empty iff the loop exhausted its budget
}

// Loop drives the build-repair state machine over a materialized
// working directory, mutating the project state only when a fix fully
// applies.
type Loop struct {
	cfg LoopConfig
}

// NewLoop creates a Loop with defaults applied.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Loop{cfg: cfg}
}

// Run executes the loop until a terminal state. The returned error is
// reserved for infrastructure failures (cancellation, disk); build
// failures terminate through StateExhausted instead.
func (l *Loop) Run(ctx context.Context, state *project.State) (*Result, error) {
	res := &Result{State: StateAssembled}
	builds := 0
	var lastReport BuildReport
	var chosenFix Fix

	// Strategy that produced the upcoming build attempt
	pending := StrategyNone
	pendingSignature := ""
	pendingDiff := ""

	if err := l.cfg.Manager.Materialize(l.cfg.Dir, state.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to materialize project: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch res.State {
		case StateAssembled:
			if err := l.advance(res, StateBuildRunning, builds, ""); err != nil {
				return nil, err
			}

		case StateBuildRunning:
			builds++
			report := l.cfg.Runner.Run(ctx, l.cfg.Dir.Path)
			lastReport = report

			attempt := Attempt{
				Number:    builds,
				Strategy:  pending,
				Signature: pendingSignature,
				Diff:      pendingDiff,
				Report:    report,
				Outcome:   "failed",
			}
			if report.Success {
				attempt.Outcome = "passed"
			}
			res.Attempts = append(res.Attempts, attempt)
			pending, pendingSignature, pendingDiff = StrategyNone, "", ""

			if report.Success {
				if err := l.advance(res, StateBuildPassed, builds, ""); err != nil {
					return nil, err
				}
				return res, nil
			}
			if err := l.advance(res, StateBuildFailed, builds, shortExcerpt(report.Stderr)); err != nil {
				return nil, err
			}

		case StateBuildFailed:
			if err := l.advance(res, StateClassifyError, builds, ""); err != nil {
				return nil, err
			}

		case StateClassifyError:
			if builds >= l.cfg.MaxAttempts {
				res.Feedback = buildFeedback(builds, lastReport)
				if err := l.advance(res, StateExhausted, builds, res.Feedback); err != nil {
					return nil, err
				}
				return res, nil
			}
			if fix, ok := Classify(lastReport.Stderr); ok {
				chosenFix = fix
				if err := l.advance(res, StateQuickFixApplied, builds, fix.Signature); err != nil {
					return nil, err
				}
				break
			}
			if l.cfg.Fixer == nil {
				res.Feedback = buildFeedback(builds, lastReport)
				if err := l.advance(res, StateExhausted, builds, res.Feedback); err != nil {
					return nil, err
				}
				return res, nil
			}
			if err := l.advance(res, StateAIFixRequested, builds, ""); err != nil {
				return nil, err
			}

		case StateQuickFixApplied:
			diff, err := l.apply(state, chosenFix.Artifacts)
			if err != nil {
				return nil, err
			}
			pending, pendingSignature, pendingDiff = StrategyQuickFix, chosenFix.Signature, diff
			if err := l.advance(res, StateBuildRunning, builds, ""); err != nil {
				return nil, err
			}

		case StateAIFixRequested:
			artifacts, err := l.cfg.Fixer.Fix(ctx, lastReport, state.Snapshot())
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				res.Feedback = buildFeedback(builds, lastReport) + fmt.Sprintf("; ai fix unavailable: %v", err)
				if aerr := l.advance(res, StateExhausted, builds, res.Feedback); aerr != nil {
					return nil, aerr
				}
				return res, nil
			}
			diff, err := l.apply(state, artifacts)
			if err != nil {
				return nil, err
			}
			pending, pendingDiff = StrategyAIFix, diff
			if err := l.advance(res, StateBuildRunning, builds, ""); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("repair loop stuck in state %s", res.State)
		}
	}
}

// advance moves the loop to the next state, validating the transition
// and notifying any observer.
func (l *Loop) advance(res *Result, to State, attempt int, detail string) error {
	if !canTransition(res.State, to) {
		return fmt.Errorf("invalid repair transition %s -> %s", res.State, to)
	}
	if l.cfg.Notify != nil {
		l.cfg.Notify(Transition{From: res.State, To: to, Attempt: attempt, Detail: detail})
	}
	res.State = to
	return nil
}

// apply commits fix artifacts to the project state and syncs them to
// the working directory, returning the combined patch text.
func (l *Loop) apply(state *project.State, artifacts []project.Artifact) (string, error) {
	var diffs []string
	for _, a := range artifacts {
		before, _ := state.Get(a.Path)
		after := a.Content
		if a.Action == project.Delete {
			after = ""
		}
		if d := renderDiff(a.Path, before, after); d != "" {
			diffs = append(diffs, d)
		}
	}

	if err := state.Commit(artifacts); err != nil {
		return "", fmt.Errorf("failed to commit fix: %w", err)
	}

	for _, a := range artifacts {
		if a.Action == project.Delete {
			if err := l.cfg.Manager.RemoveFile(l.cfg.Dir, a.Path); err != nil {
				return "", err
			}
			continue
		}
		if err := l.cfg.Manager.WriteFile(l.cfg.Dir, a.Path, a.Content); err != nil {
			return "", err
		}
	}

	return strings.Join(diffs, "\n"), nil
}

// renderDiff produces a compact patch for one file edit, recorded with
// the repair attempt.
func renderDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	patch := dmp.PatchToText(dmp.PatchMake(before, diffs))
	if patch == "" {
		return ""
	}
	return fmt.Sprintf("--- %s\n%s", path, patch)
}

func buildFeedback(builds int, report BuildReport) string {
	return fmt.Sprintf("build failed after %d attempt(s): %s", builds, errorExcerpt(report))
}

// shortExcerpt trims stderr to a single readable line for transition
// details.
func shortExcerpt(stderr string) string {
	text := strings.TrimSpace(stderr)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 160 {
		text = text[:160] + "..."
	}
	return text
}
