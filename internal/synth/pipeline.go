// Package synth drives one synthesis run end to end: requirement
// compilation, planning, concurrent task generation, static
// validation, and the optional build-repair loop. The caller gets the
// assembled project files plus feedback; feedback is empty exactly
// when validation and the build (if enabled) fully succeeded.
package synth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/events"
	"github.com/sitesmith/sitesmith/internal/generator"
	"github.com/sitesmith/sitesmith/internal/persistence"
	"github.com/sitesmith/sitesmith/internal/planner"
	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/repair"
	"github.com/sitesmith/sitesmith/internal/requirements"
	"github.com/sitesmith/sitesmith/internal/scheduler"
	"github.com/sitesmith/sitesmith/internal/template"
	"github.com/sitesmith/sitesmith/internal/validator"
	"github.com/sitesmith/sitesmith/internal/workdir"
)

// BuildOptions configures the build-repair step of a run.
type BuildOptions struct {
	Manager     *workdir.Manager // Working-directory manager (required)
	Runner      repair.Runner    // Build invocation (required)
	MaxAttempts int              // Build budget, repair.DefaultMaxAttempts when zero
	KeepWorkdir bool             // Leave the working directory behind for inspection
}

// Config configures a Pipeline.
type Config struct {
	Backend backend.Backend // Generative provider (required)

	Store persistence.Store // Optional run history recording
	Bus   *events.Bus       // Optional progress event publishing

	Concurrency int      // Max concurrent generation tasks (default 4)
	Constraints []string // Extra requirement constraints from configuration

	Build *BuildOptions // nil stops after static validation
}

// Result is the outcome of one synthesis run. Files are always the
// best available project state, feedback or not.
type Result struct {
	RunID    string
	Files    map[string]string
	Feedback string // Empty iff validation and build fully succeeded
	Attempts []repair.Attempt
}

// Pipeline synthesizes projects from natural-language requirements.
type Pipeline struct {
	cfg       Config
	backend   backend.Backend // resilience-wrapped provider
	planner   *planner.Planner
	generator *generator.Generator

	storeMu sync.Mutex // serializes history writes under concurrent generation
}

// New creates a Pipeline with defaults applied. The configured backend
// is wrapped with retry and circuit breaker protection; planning,
// generation, and AI fixes all go through the wrapper.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Build != nil && (cfg.Build.Manager == nil || cfg.Build.Runner == nil) {
		return nil, fmt.Errorf("build options need a manager and a runner")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	rb := newResilientBackend(cfg.Backend, NewCircuitBreakerRegistry().Get(cfg.Backend.Name()), DefaultRetryConfig())

	return &Pipeline{
		cfg:       cfg,
		backend:   rb,
		planner:   planner.New(rb),
		generator: generator.New(rb),
	}, nil
}

// Synthesize runs the whole pipeline for one requirement. A hard error
// is returned only for planning failures, fatal generation failures,
// cancellation, or infrastructure trouble preparing the build
// directory; validation and build failures come back as feedback on
// the Result instead.
func (p *Pipeline) Synthesize(ctx context.Context, requirement string) (*Result, error) {
	start := time.Now()

	// Requirement compilation is pure input shaping; an empty
	// requirement never becomes a recorded run.
	doc, err := requirements.Compile(requirement, p.cfg.Constraints)
	if err != nil {
		return nil, fmt.Errorf("invalid requirement: %w", err)
	}

	runID, err := newRunID()
	if err != nil {
		return nil, err
	}
	p.recordRunStart(ctx, runID, requirement)

	p.phase(runID, events.PhasePlanning)
	tasks, err := p.planner.Plan(ctx, doc)
	if err != nil {
		return nil, p.fail(ctx, runID, start, err)
	}
	p.saveTasks(ctx, runID, tasks)

	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	p.publish(events.TopicPipeline, events.PlanReadyEvent{
		RunID:     runID,
		TaskCount: len(tasks),
		TaskNames: names,
		Timestamp: time.Now(),
	})

	state, err := project.NewStateFrom(template.Files())
	if err != nil {
		return nil, p.fail(ctx, runID, start, err)
	}

	p.phase(runID, events.PhaseGenerating)
	if err := p.generate(ctx, runID, doc, tasks, state); err != nil {
		return nil, p.fail(ctx, runID, start, err)
	}

	p.phase(runID, events.PhaseValidating)
	report := validator.Validate(state.Snapshot())
	p.publishValidation(runID, report)

	var attempts []repair.Attempt
	buildFeedback := ""
	if p.cfg.Build != nil {
		p.phase(runID, events.PhaseBuilding)
		fb, atts, err := p.build(ctx, runID, state)
		if err != nil {
			return nil, p.fail(ctx, runID, start, err)
		}
		buildFeedback = fb
		attempts = atts

		// A fix may have changed imports or exports; the report must
		// describe the files actually returned.
		if fixApplied(attempts) {
			report = validator.Validate(state.Snapshot())
			p.publishValidation(runID, report)
		}
	}

	p.phase(runID, events.PhaseAssembling)
	files := template.Assemble(state.Snapshot())

	feedback := report.Render()
	if buildFeedback != "" {
		if feedback != "" {
			feedback += "\n"
		}
		feedback += buildFeedback
	}

	status := persistence.RunSucceeded
	if feedback != "" {
		status = persistence.RunFailed
	}
	p.recordRunEnd(ctx, runID, status, feedback, len(files), start)
	p.publish(events.TopicPipeline, events.PipelineDoneEvent{
		RunID:     runID,
		Success:   feedback == "",
		Files:     len(files),
		Feedback:  feedback,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	return &Result{
		RunID:    runID,
		Files:    files,
		Feedback: feedback,
		Attempts: attempts,
	}, nil
}

// generate runs the task DAG in waves. Independent tasks within a wave
// share one committed snapshot and run concurrently; their artifacts
// are committed in plan order after the whole wave finishes, so output
// is reproducible regardless of finish order. The first generation
// failure aborts the run.
func (p *Pipeline) generate(ctx context.Context, runID string, doc *requirements.Document, tasks []*scheduler.Task, state *project.State) error {
	dag := scheduler.NewDAG()
	for _, t := range tasks {
		if err := dag.AddTask(t); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		eligible := dag.Eligible()
		if len(eligible) == 0 {
			break
		}

		snapshot := state.Snapshot()
		results := make([][]project.Artifact, len(eligible))
		durations := make([]time.Duration, len(eligible))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Concurrency)

		for i, task := range eligible {
			i, task := i, task
			g.Go(func() error {
				if err := dag.MarkInProgress(task.ID); err != nil {
					return err
				}
				p.recordTask(ctx, runID, task.ID, scheduler.TaskInProgress, nil)
				p.publish(events.TopicTask, events.TaskStartedEvent{
					ID:        task.ID,
					Name:      task.Name,
					Files:     task.Files,
					Timestamp: time.Now(),
				})

				started := time.Now()
				artifacts, err := p.generator.Generate(gctx, doc, task, snapshot)
				if err != nil {
					_ = dag.MarkFailed(task.ID, err)
					p.recordTask(ctx, runID, task.ID, scheduler.TaskFailed, err)
					p.publish(events.TopicTask, events.TaskFailedEvent{
						ID:        task.ID,
						Err:       err,
						Duration:  time.Since(started),
						Timestamp: time.Now(),
					})
					return err
				}
				results[i] = artifacts
				durations[i] = time.Since(started)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		// Deterministic commit order: plan order within the wave
		for i, task := range eligible {
			if err := state.Commit(results[i]); err != nil {
				genErr := &generator.GenerationError{TaskID: task.ID, Reason: "artifacts failed to commit", Err: err}
				_ = dag.MarkFailed(task.ID, genErr)
				p.recordTask(ctx, runID, task.ID, scheduler.TaskFailed, genErr)
				p.publish(events.TopicTask, events.TaskFailedEvent{
					ID:        task.ID,
					Err:       genErr,
					Timestamp: time.Now(),
				})
				return genErr
			}
			if err := dag.MarkCompleted(task.ID); err != nil {
				return err
			}
			p.recordTask(ctx, runID, task.ID, scheduler.TaskCompleted, nil)
			p.publish(events.TopicTask, events.TaskCompletedEvent{
				ID:        task.ID,
				Artifacts: len(results[i]),
				Duration:  durations[i],
				Timestamp: time.Now(),
			})
		}
	}

	if pending, inProgress, _, _ := dag.Counts(); pending > 0 || inProgress > 0 {
		return fmt.Errorf("task graph stalled with %d task(s) unreachable", pending+inProgress)
	}
	return nil
}

// build materializes the project into a working directory and runs the
// repair loop against it. The directory is locked for the duration so
// two loops never build the same path, and removed afterwards unless
// the run keeps it for inspection.
func (p *Pipeline) build(ctx context.Context, runID string, state *project.State) (string, []repair.Attempt, error) {
	opts := p.cfg.Build

	wd, err := opts.Manager.Create(runID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to prepare working directory: %w", err)
	}
	if !opts.KeepWorkdir {
		defer func() {
			if err := opts.Manager.Cleanup(wd); err != nil {
				log.Printf("WARNING: failed to clean working directory %s: %v", wd.Path, err)
			}
		}()
	}

	opts.Manager.Lock(wd)
	defer opts.Manager.Unlock(wd)

	loop := repair.NewLoop(repair.LoopConfig{
		MaxAttempts: opts.MaxAttempts,
		Runner:      opts.Runner,
		Fixer:       repair.NewFixer(p.backend),
		Manager:     opts.Manager,
		Dir:         wd,
		Notify: func(tr repair.Transition) {
			p.publish(events.TopicRepair, events.RepairTransitionEvent{
				RunID:     runID,
				From:      tr.From.String(),
				To:        tr.To.String(),
				Attempt:   tr.Attempt,
				Detail:    tr.Detail,
				Timestamp: time.Now(),
			})
		},
	})

	res, err := loop.Run(ctx, state)
	if err != nil {
		return "", nil, err
	}

	p.saveAttempts(ctx, runID, res.Attempts)
	return res.Feedback, res.Attempts, nil
}

// fixApplied reports whether any repair attempt mutated the project.
func fixApplied(attempts []repair.Attempt) bool {
	for _, att := range attempts {
		if att.Strategy != repair.StrategyNone {
			return true
		}
	}
	return false
}

func (p *Pipeline) publish(topic string, ev events.Event) {
	if p.cfg.Bus != nil {
		p.cfg.Bus.Publish(topic, ev)
	}
}

func (p *Pipeline) phase(runID, phase string) {
	p.publish(events.TopicPipeline, events.PhaseChangedEvent{
		RunID:     runID,
		Phase:     phase,
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) publishValidation(runID string, report validator.Report) {
	p.publish(events.TopicPipeline, events.ValidationDoneEvent{
		RunID:     runID,
		Valid:     report.Valid,
		Errors:    len(report.Errors),
		Timestamp: time.Now(),
	})
}

// fail records and announces a hard-error run before handing the error
// back to the caller.
func (p *Pipeline) fail(ctx context.Context, runID string, start time.Time, err error) error {
	p.recordRunEnd(ctx, runID, persistence.RunFailed, err.Error(), 0, start)
	p.publish(events.TopicPipeline, events.PipelineDoneEvent{
		RunID:     runID,
		Success:   false,
		Feedback:  err.Error(),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	return err
}

// History writes never fail a run; they degrade to log warnings.

func (p *Pipeline) recordRunStart(ctx context.Context, runID, requirement string) {
	if p.cfg.Store == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.cfg.Store.CreateRun(ctx, runID, requirement); err != nil {
		log.Printf("WARNING: failed to record run start: %v", err)
	}
}

func (p *Pipeline) recordRunEnd(ctx context.Context, runID string, status persistence.RunStatus, feedback string, fileCount int, start time.Time) {
	if p.cfg.Store == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.cfg.Store.FinishRun(ctx, runID, status, feedback, fileCount, time.Since(start)); err != nil {
		log.Printf("WARNING: failed to record run end: %v", err)
	}
}

func (p *Pipeline) saveTasks(ctx context.Context, runID string, tasks []*scheduler.Task) {
	if p.cfg.Store == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.cfg.Store.SaveTasks(ctx, runID, tasks); err != nil {
		log.Printf("WARNING: failed to record plan: %v", err)
	}
}

func (p *Pipeline) recordTask(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, taskErr error) {
	if p.cfg.Store == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.cfg.Store.UpdateTaskStatus(ctx, runID, taskID, status, taskErr); err != nil {
		log.Printf("WARNING: failed to record task status: %v", err)
	}
}

func (p *Pipeline) saveAttempts(ctx context.Context, runID string, attempts []repair.Attempt) {
	if p.cfg.Store == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	for _, att := range attempts {
		rec := persistence.RepairAttempt{
			Number:    att.Number,
			Strategy:  att.Strategy.String(),
			Signature: att.Signature,
			Outcome:   att.Outcome,
			Diff:      att.Diff,
			Stderr:    tail(att.Report.Stderr, 2000),
		}
		if err := p.cfg.Store.SaveAttempt(ctx, runID, rec); err != nil {
			log.Printf("WARNING: failed to record repair attempt %d: %v", att.Number, err)
		}
	}
}

// tail keeps the last n bytes of s; build errors report the failure at
// the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// newRunID generates a version 4 UUID (random).
// Format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx where y is 8, 9, a, or b.
func newRunID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Set version (4) and variant (RFC 4122)
	b[6] = (b[6] & 0x0f) | 0x40 // Version 4
	b[8] = (b[8] & 0x3f) | 0x80 // Variant is 10

	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}
