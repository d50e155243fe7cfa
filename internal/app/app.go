package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/eventlog"
	"github.com/lukasbauer/apriori/internal/events"
	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/httpapi"
	"github.com/lukasbauer/apriori/internal/jobs"
	"github.com/lukasbauer/apriori/internal/llm"
	"github.com/lukasbauer/apriori/internal/lock"
	"github.com/lukasbauer/apriori/internal/metrics"
	"github.com/lukasbauer/apriori/internal/notifications"
	"github.com/lukasbauer/apriori/internal/store"
	"github.com/lukasbauer/apriori/internal/voice"
	"github.com/lukasbauer/apriori/internal/webhook"
)

type App struct {
	cfg      Config
	logger   zerolog.Logger
	db       *pgxpool.Pool
	store    *store.Store
	redis    *redis.Client
	locker   lock.Locker
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	pipeline    *analysis.Pipeline
	hub         *events.Hub
	kafka       *events.KafkaPublisher
	scheduler   *followup.Scheduler
	executor    *followup.Executor
	interpreter *followup.Interpreter
	job         *jobs.FollowUpJob
	drain       *httpapi.DrainRegistry
}

func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(initCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(initCtx); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, db: db, store: store.New(db)}

	if cfg.AutoMigrate {
		if err := a.store.Migrate(initCtx); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info().Msg("App: schema applied")
	}

	// Without Redis the locks only serialize passes inside this process.
	if cfg.RedisURL != "" {
		a.redis, err = lock.NewRedisClient(initCtx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.locker = lock.NewRedisLocker(a.redis)
	} else {
		logger.Warn().Msg("App: REDIS_URL not set, job locks are process-local")
		a.locker = lock.NewLocalLocker()
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	loc, err := time.LoadLocation(cfg.DefaultTimeZone)
	if err != nil {
		logger.Warn().Err(err).Str("time_zone", cfg.DefaultTimeZone).Msg("App: invalid DEFAULT_TIME_ZONE, using UTC")
		loc = time.UTC
	}

	// Shared HTTP client with connection pooling for the provider APIs.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("App: OPENAI_API_KEY not set, every analysis will use the fallback record")
	}
	a.pipeline = analysis.NewPipeline(llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		HTTPClient: httpClient,
	}), logger, a.metrics, analysis.PipelineConfig{Concurrency: cfg.AnalysisConcurrency})

	agents, err := voice.NewClient(voice.Config{
		APIKey:        cfg.ElevenLabsAPIKey,
		PhoneNumberID: cfg.ElevenLabsPhoneNumberID,
		VoiceID:       cfg.ElevenLabsVoiceID,
		Language:      cfg.VoiceLanguage,
		HTTPClient:    httpClient,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create voice client: %w", err)
	}

	a.hub = events.NewHub(a.metrics, logger)
	a.kafka = events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, a.metrics, logger)
	sink := events.Fanout{eventlog.New(db, a.metrics, logger), a.kafka, a.hub}

	alerts, err := a.alerters()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = followup.NewScheduler(a.store, agents, sink, a.metrics, logger, followup.SchedulerConfig{
		DedupWindow:     time.Duration(cfg.DedupWindowDays) * 24 * time.Hour,
		DefaultLocation: loc,
	})
	a.executor = followup.NewExecutor(a.store, agents, sink, a.metrics, logger, followup.ExecutorConfig{
		Pause: cfg.CallPause,
	})
	a.interpreter = followup.NewInterpreter(a.store, a.pipeline, alerts, sink, a.metrics, logger, followup.InterpreterConfig{})
	a.job = jobs.NewFollowUpJob(a.scheduler, a.executor, a.locker, a.metrics, logger, jobs.FollowUpJobConfig{
		ScheduleInterval: cfg.ScheduleInterval,
		ExecuteInterval:  cfg.ExecuteInterval,
	})
	a.drain = httpapi.NewDrainRegistry()

	return a, nil
}

// alerters builds the HR alert channels that are configured.
func (a *App) alerters() (notifications.Multi, error) {
	var out notifications.Multi

	if d := notifications.NewDiscord(a.cfg.DiscordWebhookURL, a.logger); d.Enabled() {
		out = append(out, d)
	}

	apns, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    a.cfg.APNsKeyPath,
		KeyID:      a.cfg.APNsKeyID,
		TeamID:     a.cfg.APNsTeamID,
		BundleID:   a.cfg.APNsBundleID,
		Production: a.cfg.APNsProduction,
	}, a.cfg.HRDeviceTokens, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create APNs client: %w", err)
	}
	if apns != nil {
		out = append(out, apns.WithTokenSource(a.store))
	}

	if sms := notifications.NewSMSClient(notifications.SMSConfig{
		AccountSID:   a.cfg.TwilioAccountSID,
		AuthToken:    a.cfg.TwilioAuthToken,
		SenderNumber: a.cfg.TwilioSMSFrom,
		Recipients:   a.cfg.HRSMSNumbers,
	}, a.logger); sms != nil {
		out = append(out, sms)
	}

	if len(out) == 0 {
		a.logger.Warn().Msg("App: no HR alert channel configured, human follow-ups are only logged")
	}
	return out, nil
}

func (a *App) Router() http.Handler {
	if a.cfg.ElevenLabsWebhookSecret == "" {
		a.logger.Warn().Msg("App: ELEVENLABS_WEBHOOK_SECRET not set, webhook signatures are NOT verified")
	}
	if a.cfg.JWTSecret == "" {
		a.logger.Warn().Msg("App: JWT_SECRET not set, admin API disabled")
	}

	routerCfg := httpapi.RouterConfig{
		JWTSecret:       a.cfg.JWTSecret,
		ExecuteLockTTL:  a.cfg.ExecuteInterval,
		ScheduleLockTTL: 30 * time.Minute,
	}
	return httpapi.NewRouter(routerCfg, httpapi.Services{
		Verifier:    webhook.NewVerifier(a.cfg.ElevenLabsWebhookSecret),
		Interpreter: a.interpreter,
		Scheduler:   a.scheduler,
		Executor:    a.executor,
		Reporting:   a.store,
		Interviews:  a.store,
		Devices:     a.store,
		Locker:      a.locker,
		Events:      a.hub,
		Registry:    a.drain,
		Metrics:     a.metrics,
		Gatherer:    a.registry,
	}, a.logger)
}

func (a *App) Store() *store.Store {
	return a.store
}

func (a *App) Locker() lock.Locker {
	return a.locker
}

func (a *App) Pipeline() *analysis.Pipeline {
	return a.pipeline
}

func (a *App) Scheduler() *followup.Scheduler {
	return a.scheduler
}

func (a *App) Executor() *followup.Executor {
	return a.executor
}

func (a *App) Hub() *events.Hub {
	return a.hub
}

func (a *App) Job() *jobs.FollowUpJob {
	return a.job
}

func (a *App) DrainRegistry() *httpapi.DrainRegistry {
	return a.drain
}

func (a *App) Close() error {
	var errs []error
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
