package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitesmith/sitesmith/internal/config"
	"github.com/sitesmith/sitesmith/internal/persistence"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past synthesis runs",
	Long: `Without arguments, history lists the most recent runs. With a run ID
(or a unique prefix of one) it shows that run's planned tasks, build
attempts, and feedback.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	dbPath, err := cfg.HistoryDBPath()
	if err != nil {
		return err
	}
	store, err := persistence.NewSQLiteStore(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	if len(args) == 1 {
		return showRun(ctx, store, args[0])
	}
	return listRuns(ctx, store)
}

func listRuns(ctx context.Context, store persistence.Store) error {
	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSTATUS\tFILES\tDURATION\tREQUIREMENT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(r.ID),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.FileCount,
			formatRunDuration(r),
			truncate(r.Requirement, 48),
		)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, store persistence.Store, ref string) error {
	run, err := findRun(ctx, store, ref)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("Status:      %s\n", run.Status)
	fmt.Printf("Created:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration:    %s\n", formatRunDuration(run))
	fmt.Printf("Files:       %d\n", run.FileCount)
	fmt.Printf("Requirement: %s\n", run.Requirement)

	tasks, err := store.GetTasks(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		fmt.Println("\nTasks:")
		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		for _, t := range tasks {
			detail := strings.Join(t.Files, ", ")
			if t.Err != nil {
				detail = t.Err.Error()
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, truncate(detail, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	attempts, err := store.GetAttempts(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(attempts) > 0 {
		fmt.Println("\nBuild attempts:")
		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		for _, att := range attempts {
			sig := att.Signature
			if sig == "" {
				sig = "-"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", att.Number, att.Strategy, att.Outcome, sig)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if run.Feedback != "" {
		fmt.Println("\nFeedback:")
		fmt.Println(run.Feedback)
	}
	return nil
}

// findRun resolves a full run ID, falling back to unique-prefix matching
// so users can paste the short form from the list view.
func findRun(ctx context.Context, store persistence.Store, ref string) (*persistence.Run, error) {
	if run, err := store.GetRun(ctx, ref); err == nil {
		return run, nil
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}

	var matches []*persistence.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no run matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous: %d runs match", ref, len(matches))
	}
}

func formatRunDuration(r *persistence.Run) string {
	if r.Status == persistence.RunRunning {
		return "-"
	}
	if r.Duration < time.Second {
		return r.Duration.Round(time.Millisecond).String()
	}
	return r.Duration.Round(time.Second).String()
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
