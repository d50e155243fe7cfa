package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lukasbauer/apriori/internal/app"
	"github.com/lukasbauer/apriori/internal/logging"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apriori",
		Short: "Apriori - follow-up calls and exit-interview insights",
		Long: `Apriori schedules and places follow-up calls to employees through
ElevenLabs conversational agents, interprets the post-call webhooks and
turns the transcripts into retention insights for HR.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newScheduleCommand())
	cmd.AddCommand(newExecuteCommand())
	cmd.AddCommand(newInsightsCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newTokenCommand())

	return cmd
}

// setup loads configuration and builds the logger shared by every command.
func setup() (app.Config, zerolog.Logger) {
	cfg := app.LoadConfigFromEnv()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, logger
}

// initSentry enables error reporting when SENTRY_DSN is set. The returned
// func flushes pending events.
func initSentry(cfg app.Config, logger zerolog.Logger) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 0.2, // 20% of requests for performance monitoring
		Environment:      cfg.Environment,
		Release:          version,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Sentry: init failed")
		return func() {}
	}
	logger.Info().Str("environment", cfg.Environment).Msg("Sentry: initialized")
	return func() { sentry.Flush(2 * time.Second) }
}

// openApp builds the application for commands that need the database.
func openApp(ctx context.Context) (*app.App, zerolog.Logger, error) {
	cfg, logger := setup()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, logger, err
	}
	return a, logger, nil
}
