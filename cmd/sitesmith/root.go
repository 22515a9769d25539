package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/config"
	"github.com/sitesmith/sitesmith/internal/events"
	"github.com/sitesmith/sitesmith/internal/persistence"
	"github.com/sitesmith/sitesmith/internal/repair"
	"github.com/sitesmith/sitesmith/internal/synth"
	"github.com/sitesmith/sitesmith/internal/tui"
	"github.com/sitesmith/sitesmith/internal/workdir"
)

var (
	outDir       string
	noTUI        bool
	skipBuild    bool
	keepWorkdir  bool
	providerName string
	modelName    string
	concurrency  int
	constraints  []string
)

// procs tracks build subprocesses so a shutdown signal can terminate
// the whole npm process tree.
var procs = repair.NewProcessManager()

var rootCmd = &cobra.Command{
	Use:   `sitesmith "feature request"`,
	Short: "Synthesize a runnable Next.js project from a feature request",
	Long: `Sitesmith turns a natural-language feature request into a complete
Next.js App Router project in TypeScript with Tailwind CSS.

A run plans the request into generation tasks, generates each task's
files through the configured provider, statically validates every
cross-file import, and then builds the project with npm, repairing
recognized failures, until the build passes or the attempt budget runs
out. The assembled project is written to the output directory either
way; any remaining problems are reported as feedback.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSynthesis,
}

func init() {
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "site", "directory the assembled project is written to")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "run headless, logging progress instead of drawing the TUI")
	rootCmd.Flags().BoolVar(&skipBuild, "skip-build", false, "stop after static validation, skipping the npm build and repair loop")
	rootCmd.Flags().BoolVar(&keepWorkdir, "keep-workdir", false, "keep the build working directory for inspection")
	rootCmd.Flags().StringVar(&providerName, "provider", "", "provider entry to use (overrides the configured selection)")
	rootCmd.Flags().StringVar(&modelName, "model", "", "model override for the active provider")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "max concurrent generation tasks")
	rootCmd.Flags().StringArrayVar(&constraints, "constraint", nil, "extra constraint passed to planning and generation (repeatable)")

	rootCmd.AddCommand(historyCmd)
}

func runSynthesis(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	requirement := args[0]

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if providerName != "" {
		cfg.Provider = providerName
	}

	provider, err := cfg.ActiveProvider()
	if err != nil {
		return err
	}
	if modelName != "" {
		provider.Model = modelName
	}

	apiKey := ""
	if provider.APIKeyEnv != "" {
		apiKey = os.Getenv(provider.APIKeyEnv)
	}

	b, err := backend.New(backend.Config{
		Provider:    provider.Type,
		BaseURL:     provider.BaseURL,
		APIKey:      apiKey,
		Model:       provider.Model,
		MaxTokens:   provider.MaxTokens,
		Temperature: provider.Temperature,
	})
	if err != nil {
		return err
	}

	// Run history degrades to a warning; synthesis works without it.
	var store persistence.Store
	dbPath, err := cfg.HistoryDBPath()
	if err == nil {
		s, serr := persistence.NewSQLiteStore(ctx, dbPath)
		if serr != nil {
			log.Printf("WARNING: run history disabled: %v", serr)
		} else {
			store = s
			defer s.Close()
		}
	}

	var build *synth.BuildOptions
	if !skipBuild {
		manager := workdir.NewManager(workdir.ManagerConfig{
			Root:     ".",
			BuildDir: cfg.Paths.BuildRoot,
		})
		runner := &repair.CommandRunner{
			Steps:   [][]string{cfg.Build.Install, cfg.Build.Command},
			Timeout: time.Duration(cfg.Build.TimeoutSeconds) * time.Second,
			Procs:   procs,
		}
		build = &synth.BuildOptions{
			Manager:     manager,
			Runner:      runner,
			MaxAttempts: cfg.Build.MaxAttempts,
			KeepWorkdir: keepWorkdir,
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	pipeline, err := synth.New(synth.Config{
		Backend:     b,
		Store:       store,
		Bus:         bus,
		Concurrency: concurrency,
		Constraints: constraints,
		Build:       build,
	})
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	resCh := make(chan *synth.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := pipeline.Synthesize(runCtx, requirement)
		if err != nil {
			errCh <- err
			return
		}
		resCh <- res
	}()

	if noTUI {
		go logEvents(bus)
		select {
		case res := <-resCh:
			return finish(res)
		case err := <-errCh:
			return err
		}
	}

	return runWithTUI(ctx, cancelRun, bus, cfg, resCh, errCh)
}

// runWithTUI drives the Bubble Tea program alongside the pipeline. The
// TUI stays open after the run finishes so the final state is visible;
// quitting it mid-run cancels the pipeline.
func runWithTUI(ctx context.Context, cancelRun context.CancelFunc, bus *events.Bus, cfg *config.Config, resCh <-chan *synth.Result, errCh <-chan error) error {
	globalPath, err := config.GlobalPath()
	if err != nil {
		globalPath = config.ProjectPath()
	}

	model := tui.New(bus, cfg, globalPath, config.ProjectPath())
	program := tea.NewProgram(model, tea.WithAltScreen())

	tuiErr := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiErr <- err
	}()

	var res *synth.Result
	var runErr error
	for done := false; !done; {
		select {
		case r := <-resCh:
			res = r
		case e := <-errCh:
			runErr = e
		case e := <-tuiErr:
			cancelRun()
			if e != nil {
				log.Printf("TUI error: %v", e)
			}
			done = true
		case <-ctx.Done():
			// Signal received; builds are killed by main's watcher
			program.Quit()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			select {
			case <-tuiErr:
			case <-shutdownCtx.Done():
				log.Println("Shutdown timeout exceeded, forcing exit")
			}
			cancel()
			done = true
		}
	}

	// The run may still be finishing after the TUI closed
	if res == nil && runErr == nil {
		select {
		case res = <-resCh:
		case runErr = <-errCh:
		case <-time.After(5 * time.Second):
			runErr = errors.New("run did not stop in time")
		}
	}

	if runErr != nil {
		return runErr
	}
	return finish(res)
}

// finish writes the assembled project and reports the outcome. Feedback
// is printed and turned into a non-zero exit so scripted callers see
// that the project needs attention.
func finish(res *synth.Result) error {
	if err := writeProject(outDir, res.Files); err != nil {
		return err
	}
	fmt.Printf("Wrote %d file(s) to %s (run %s)\n", len(res.Files), outDir, res.RunID)

	if res.Feedback != "" {
		fmt.Println()
		fmt.Println(res.Feedback)
		return errors.New("synthesis completed with feedback")
	}
	return nil
}

// writeProject materializes the result files under dir.
func writeProject(dir string, files map[string]string) error {
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", full, err)
		}
	}
	return nil
}

// logEvents prints pipeline progress in headless mode.
func logEvents(bus *events.Bus) {
	for ev := range bus.SubscribeAll(256) {
		switch e := ev.(type) {
		case events.PhaseChangedEvent:
			log.Printf("phase: %s", e.Phase)
		case events.PlanReadyEvent:
			log.Printf("plan: %d task(s): %s", e.TaskCount, strings.Join(e.TaskNames, ", "))
		case events.TaskStartedEvent:
			log.Printf("task %s started: %s", e.ID, e.Name)
		case events.TaskCompletedEvent:
			log.Printf("task %s completed: %d artifact(s) in %v", e.ID, e.Artifacts, e.Duration.Round(time.Millisecond))
		case events.TaskFailedEvent:
			log.Printf("task %s failed: %v", e.ID, e.Err)
		case events.ValidationDoneEvent:
			if e.Valid {
				log.Printf("validation: clean")
			} else {
				log.Printf("validation: %d issue(s)", e.Errors)
			}
		case events.RepairTransitionEvent:
			if e.Detail != "" {
				log.Printf("build: %s -> %s (attempt %d): %s", e.From, e.To, e.Attempt, e.Detail)
			} else {
				log.Printf("build: %s -> %s (attempt %d)", e.From, e.To, e.Attempt)
			}
		case events.PipelineDoneEvent:
			if e.Success {
				log.Printf("done: %d file(s) in %v", e.Files, e.Duration.Round(time.Millisecond))
			} else {
				log.Printf("done with feedback after %v", e.Duration.Round(time.Millisecond))
			}
		}
	}
}
