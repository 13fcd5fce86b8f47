// Command serve runs the fetch pipeline on an interval and serves the
// latest output files, the run ledger, health and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/conflictwatch/internal/app"
	"github.com/backyonatan-alt/conflictwatch/internal/scheduler"
	"github.com/backyonatan-alt/conflictwatch/internal/server"
)

func main() {
	app.InitLogging()
	if err := run(); err != nil {
		slog.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, "conflictwatch-serve")
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.Config, a.Cache, a.Store, a.OutputPaths(), a.Registry)
	httpServer := &http.Server{
		Addr:         ":" + a.Config.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	sched := scheduler.New(a.Pipeline, a.Config.FetchInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Run once immediately, then on the interval
		slog.Info("running initial pipeline")
		if err := a.Pipeline.Run(gctx); err != nil {
			slog.Error("initial pipeline run failed", "error", err)
		}
		sched.Start(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("server starting", "port", a.Config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}
