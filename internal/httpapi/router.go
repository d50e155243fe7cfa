package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/lock"
	"github.com/lukasbauer/apriori/internal/metrics"
	"github.com/lukasbauer/apriori/internal/store"
	"github.com/lukasbauer/apriori/internal/webhook"
)

type RouterConfig struct {
	// JWT Authentication for admin endpoints
	JWTSecret string

	// Default period for analytics and insights when ?days is absent
	DefaultDays int

	// Largest accepted webhook body
	MaxWebhookBytes int64

	// Lock TTLs for passes triggered from the admin API
	ScheduleLockTTL time.Duration
	ExecuteLockTTL  time.Duration
}

// Interpreter handles verified post-call webhooks.
type Interpreter interface {
	Interpret(ctx context.Context, ev webhook.Event) (followup.Interpretation, error)
}

// Scheduler runs one scheduling pass.
type Scheduler interface {
	RunPass(ctx context.Context, ct followup.CallType) (followup.ScheduleSummary, error)
}

// Executor runs one execution pass.
type Executor interface {
	RunPass(ctx context.Context) (followup.ExecuteSummary, error)
}

// Reporting is the read side used by analytics and exports.
type Reporting interface {
	ListCalls(ctx context.Context, since time.Time) ([]followup.FollowUpCall, error)
	ListInsights(ctx context.Context, since time.Time) ([]analysis.DepartmentInsight, error)
	ListCallEvents(ctx context.Context, callID int64) ([]store.CallEvent, error)
}

// Interviews reads back analyzed exit interviews.
type Interviews interface {
	ListInterviews(ctx context.Context, f store.InterviewFilter) ([]store.InterviewDetail, error)
	GetInterview(ctx context.Context, id int64) (*store.InterviewDetail, error)
}

// Devices manages HR devices that receive push alerts.
type Devices interface {
	RegisterHRDevice(ctx context.Context, token, owner, platform string) error
	UnregisterHRDevice(ctx context.Context, token string) error
	ListHRDevices(ctx context.Context) ([]store.HRDevice, error)
}

// Services are the collaborators the router dispatches to.
type Services struct {
	Verifier    *webhook.Verifier
	Interpreter Interpreter
	Scheduler   Scheduler
	Executor    Executor
	Reporting   Reporting
	Interviews  Interviews
	Devices     Devices
	Locker      lock.Locker
	Events      http.Handler // lifecycle event stream (WebSocket)
	Registry    *DrainRegistry
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

type Router struct {
	cfg    RouterConfig
	svc    Services
	logger zerolog.Logger
	now    func() time.Time
	mux    *http.ServeMux
}

func NewRouter(cfg RouterConfig, svc Services, logger zerolog.Logger) http.Handler {
	r := newRouter(cfg, svc, logger)
	return withSentryRecovery(withRequestLogging(logger, withCORS(r.mux)))
}

func newRouter(cfg RouterConfig, svc Services, logger zerolog.Logger) *Router {
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 30
	}
	if cfg.MaxWebhookBytes <= 0 {
		cfg.MaxWebhookBytes = 5 << 20
	}
	if cfg.ScheduleLockTTL <= 0 {
		cfg.ScheduleLockTTL = 30 * time.Minute
	}
	if cfg.ExecuteLockTTL <= 0 {
		cfg.ExecuteLockTTL = 15 * time.Minute
	}
	if svc.Verifier == nil {
		svc.Verifier = webhook.NewVerifier("")
	}
	if svc.Registry == nil {
		svc.Registry = NewDrainRegistry()
	}
	if svc.Locker == nil {
		svc.Locker = lock.NewLocalLocker()
	}
	if svc.Metrics == nil {
		svc.Metrics = metrics.NewNop()
	}
	if svc.Gatherer == nil {
		svc.Gatherer = prometheus.DefaultGatherer
	}

	r := &Router{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		now:    nowUTC,
		mux:    http.NewServeMux(),
	}
	r.routes()
	return r
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.svc.Gatherer, promhttp.HandlerOpts{}))

	// Voice provider webhook (no auth - signature verified)
	r.mux.HandleFunc("POST /webhooks/elevenlabs", r.handleElevenLabsWebhook)

	// Follow-up passes
	r.mux.HandleFunc("POST /admin/followups/schedule", r.withAdmin(r.handleAdminSchedule))
	r.mux.HandleFunc("POST /admin/followups/execute", r.withAdmin(r.handleAdminExecute))
	r.mux.HandleFunc("GET /admin/followups/analytics", r.withAdmin(r.handleAdminAnalytics))

	// Insights
	r.mux.HandleFunc("GET /admin/insights", r.withAdmin(r.handleAdminInsights))
	r.mux.HandleFunc("GET /admin/insights/export.xlsx", r.withAdmin(r.handleAdminExport))

	// Exit interviews
	r.mux.HandleFunc("GET /admin/interviews", r.withAdmin(r.handleListInterviews))
	r.mux.HandleFunc("GET /admin/interviews/high-risk", r.withAdmin(r.handleHighRiskInterviews))
	r.mux.HandleFunc("GET /admin/interviews/{id}", r.withAdmin(r.handleGetInterview))

	// Call audit trail
	r.mux.HandleFunc("GET /admin/calls/{id}/events", r.withAdmin(r.handleAdminCallEvents))

	// HR devices for push alerts
	r.mux.HandleFunc("GET /admin/devices", r.withAdmin(r.handleListDevices))
	r.mux.HandleFunc("POST /admin/devices", r.withAdmin(r.handleRegisterDevice))
	r.mux.HandleFunc("DELETE /admin/devices/{token}", r.withAdmin(r.handleUnregisterDevice))

	// Live lifecycle events
	if r.svc.Events != nil {
		r.mux.HandleFunc("GET /admin/ws", r.withAdmin(r.svc.Events.ServeHTTP))
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.svc.Registry.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+webhook.SignatureHeader)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

type loggerKey struct{}

// statusRecorder captures the response status for the access log. Hijack is
// passed through for WebSocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// withRequestLogging gives each request an ID and a child logger, and writes one access log line.
func withRequestLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		reqLogger := logger.With().Str("request_id", id).Logger()
		ctx := context.WithValue(req.Context(), loggerKey{}, reqLogger)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req.WithContext(ctx))

		reqLogger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP: request")
	})
}

// requestLogger returns the request-scoped logger, or fallback outside withRequestLogging.
func requestLogger(req *http.Request, fallback zerolog.Logger) *zerolog.Logger {
	if l, ok := req.Context().Value(loggerKey{}).(zerolog.Logger); ok {
		return &l
	}
	return &fallback
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
