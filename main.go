package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"trackscan/cmd"
	"trackscan/internal/log"
	"trackscan/pkg/build"
)

// main is the entry point for the trackscan command.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Install signal handling
//   - Parse command line arguments and load configuration
//
// 2. Concurrent Phase (Hot Path):
//   - Start the classifier pool and job controller
//   - Run the selected command (analyze, record, serve, worker, ...)
//
// 3. Shutdown Phase (Cold Path):
//   - Cancel the command context on SIGINT/SIGTERM
//   - Drain the active job and close sinks, pool and listeners
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no linker flags; keep the defaults.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info incomplete: %v", err)
	}

	// Commands observe ctx and return once it is cancelled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	err := cmd.Execute(ctx, os.Args[1:])

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Errors caused by the interrupt itself are not failures.
	interrupted := ctx.Err() != nil
	stop()
	if err != nil && !interrupted {
		log.Fatalf("%v", err)
	}
}
