package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"moyuren/internal/httpapi"
	"moyuren/internal/scheduler"
)

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	cfg := a.Config

	sched, err := scheduler.New(a.Clock.BusinessLocation(), func(ctx context.Context) {
		if _, err := a.Orchestrator.Generate(ctx, ""); err != nil {
			log.Error().Err(err).Msg("scheduled generation failed")
		}
	})
	if err != nil {
		return err
	}
	if err := sched.Apply(cfg.Scheduler); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown")
		}
	}()

	server := httpapi.New(cfg.Addr(), a.Store, a.Orchestrator,
		cfg.Paths.StaticDir, cfg.Ops.APIKey)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
