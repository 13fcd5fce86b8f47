// Command viirs fetches one VIIRS fire-detection snapshot and saves it to
// the data directory.
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
		slog.Error("viirs fetch failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, "conflictwatch-viirs")
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline.RunVIIRS(ctx)
	if err != nil {
		return err
	}
	slog.Info("VIIRS data has been saved", "path", res.Path)
	return nil
}
