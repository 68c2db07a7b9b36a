// File: cmd/pentestd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/pentestd/cmd"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables replaced in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(run(ctx))
}

// run executes the command tree and maps its outcome to an exit code.
func run(ctx context.Context) int {
	if err := execute(ctx); err != nil {
		// An interrupted scan or server is a clean exit.
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1
	}
	return 0
}

// handlePanic records a crash to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}

	fmt.Fprintf(os.Stderr, "\n----------------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
	fmt.Fprintf(os.Stderr, "----------------------------------------------------------------\n")
	osExit(2)
}
