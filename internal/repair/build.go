package repair

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultBuildTimeout = 10 * time.Minute

// BuildReport captures the outcome of one external build invocation.
type BuildReport struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner invokes the framework's build inside a working directory.
// Failures are part of the report, never a Go error: a broken build is
// normal input for the repair loop, not an exceptional condition.
type Runner interface {
	Run(ctx context.Context, dir string) BuildReport
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, dir string) BuildReport

func (f RunnerFunc) Run(ctx context.Context, dir string) BuildReport {
	return f(ctx, dir)
}

// CommandRunner runs the project's install and build steps as external
// processes. The zero value uses npm with the default timeout.
type CommandRunner struct {
	Steps   [][]string      // Commands run in order; a failing step short-circuits
	Timeout time.Duration   // Budget for the whole invocation
	Procs   *ProcessManager // Optional subprocess tracking for shutdown
}

func defaultSteps() [][]string {
	return [][]string{
		{"npm", "install", "--no-audit", "--no-fund"},
		{"npm", "run", "build"},
	}
}

// Run executes the configured steps in dir. A timeout produces a failed
// report rather than an error, so it counts against the repair budget
// like any other broken build.
func (r *CommandRunner) Run(ctx context.Context, dir string) BuildReport {
	steps := r.Steps
	if len(steps) == 0 {
		steps = defaultSteps()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultBuildTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var stdout, stderr strings.Builder

	for _, step := range steps {
		cmd := newCommand(ctx, step[0], step[1:]...)
		cmd.Dir = dir

		out, errOut, err := executeCommand(ctx, cmd, r.Procs)
		stdout.Write(out)
		stderr.Write(errOut)

		if err != nil {
			exitCode := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				fmt.Fprintf(&stderr, "\n%s timed out after %s\n", strings.Join(step, " "), timeout)
			} else if exitCode == -1 {
				// Start failures (missing npm) have no exit code; keep the cause visible
				fmt.Fprintf(&stderr, "\n%s: %v\n", strings.Join(step, " "), err)
			}
			return BuildReport{
				Success:  false,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				ExitCode: exitCode,
				Duration: time.Since(start),
			}
		}
	}

	return BuildReport{
		Success:  true,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
		Duration: time.Since(start),
	}
}
