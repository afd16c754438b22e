// The main package for the harvester executable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/ned-harvester/cmd"
)

// main defers all execution to the Cobra CLI. SIGINT and SIGTERM stop the
// run from pulling new work; durable state makes the next run resume.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
