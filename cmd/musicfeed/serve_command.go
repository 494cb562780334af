package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"musicfeed/internal/api"
	"musicfeed/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the stale sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := exitOnSignal(cmd.Context())
			defer stop()

			return ctx.withApp(runCtx, func(a *app) error {
				return serve(runCtx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app) error {
	handler := api.NewHandler(api.Deps{
		Artists:  a.artists,
		Listing:  a.listing,
		Admin:    a.admin,
		OEmbed:   a.soundcloud,
		Breakers: a.breakers,
		Store:    a.storePinger(),
		Sources:  a.adapters,
		Services: a.services,
		Logger:   a.logger,
	})

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      handler.Routes(a.cfg.Server.AdminRateLimit),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	if a.cfg.Sweep.Enabled {
		sched := scheduler.NewScheduler(a.refresh, a.cfg.Sweep.Interval, a.logger)
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("scheduler error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// exitOnSignal cancels the command context on SIGINT or SIGTERM.
func exitOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
