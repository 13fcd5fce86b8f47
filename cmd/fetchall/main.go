// Command fetchall runs the ACLED fetch and then the VIIRS fetch. It stops
// at the first failure.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/backyonatan-alt/conflictwatch/internal/app"
)

func main() {
	app.InitLogging()
	if err := run(); err != nil {
		slog.Error("fetch failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, "conflictwatch")
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Pipeline.Run(ctx)
}
