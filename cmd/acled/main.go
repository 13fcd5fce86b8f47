// Command acled fetches ACLED conflict events for every day since the
// configured start date and saves them to the data directory.
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
		slog.Error("acled fetch failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, "conflictwatch-acled")
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline.RunACLED(ctx)
	if err != nil {
		return err
	}
	if !res.Written {
		slog.Info("no ACLED data returned, nothing saved")
		return nil
	}
	slog.Info("ACLED data has been saved", "path", res.Path, "records", res.Records)
	return nil
}
