package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/apriori/internal/app"
)

func newServeCommand() *cobra.Command {
	var noJobs bool
	var drainTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic follow-up jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()
			flush := initSentry(cfg, logger)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				sentry.CaptureException(err)
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           a.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.Hub().Run(gctx)
				return nil
			})
			if !noJobs {
				a.Job().Start(gctx)
			}
			g.Go(func() error {
				logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP: listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info().Msg("HTTP: shutting down")

				// Refuse new webhooks and let in-flight ones finish before closing.
				drain := a.DrainRegistry()
				drain.StartDraining()
				drained := make(chan struct{})
				go func() {
					drain.Wait()
					close(drained)
				}()
				select {
				case <-drained:
				case <-time.After(drainTimeout):
					logger.Warn().Int64("active", drain.ActiveCount()).Msg("HTTP: drain timed out")
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				err := srv.Shutdown(shutdownCtx)
				a.Job().Stop()
				return err
			})

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "Serve HTTP only, without the periodic schedule and execute passes")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "How long to wait for in-flight webhooks on shutdown")
	return cmd
}
