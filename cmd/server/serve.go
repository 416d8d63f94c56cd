package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/httpserver"
)

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the audit outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	a, err := buildApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(c.cfg.Addr, a.handler, c.logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.logger.Info("starting onboarding server", "addr", c.cfg.Addr, "in_memory", c.cfg.InMemory())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), c.cfg.ShutdownTimeout)
		defer cancel()
		c.logger.Info("shutting down onboarding server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}
	if a.sweep != nil {
		g.Go(func() error {
			ticker := time.NewTicker(c.cfg.RateLimit.IntakeWindow)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					a.sweep()
				}
			}
		})
	}
	return g.Wait()
}
