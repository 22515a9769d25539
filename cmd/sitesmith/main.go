package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Signal-aware context for graceful shutdown; a second Ctrl+C after
	// stop() falls through to the default handler and force-exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kill tracked build subprocesses the moment a signal lands, so no
	// orphaned node processes survive the shutdown.
	go func() {
		<-ctx.Done()
		stop()
		procs.KillAll()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
