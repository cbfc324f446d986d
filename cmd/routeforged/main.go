// Command routeforged bootstraps the route engine's ambient stack and core
// subsystems for an embedding process to drive. It does not start an HTTP
// listener: that is a transport layer's job, added on top of the values
// this command wires together.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/corewire/routeforge/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer application.Close()

	application.Log.Info("routeforge engine bootstrapped, no transport listener started")
	<-ctx.Done()
	application.Log.Info("shutting down")
}
