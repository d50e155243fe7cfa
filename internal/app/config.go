package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	AutoMigrate bool
	LogLevel    string
	LogFormat   string

	// Error monitoring
	SentryDSN   string
	Environment string

	// Transcript analysis
	OpenAIAPIKey        string
	OpenAIModel         string
	AnalysisConcurrency int

	// ElevenLabs conversational agents
	ElevenLabsAPIKey        string
	ElevenLabsWebhookSecret string
	ElevenLabsPhoneNumberID string
	ElevenLabsVoiceID       string
	VoiceLanguage           string

	// JWT Authentication for the admin API
	JWTSecret string
	JWTExpiry time.Duration

	// Coordination between replicas
	RedisURL string

	// Lifecycle event stream
	KafkaBrokers []string
	KafkaTopic   string

	// HR alerts
	DiscordWebhookURL string
	APNsKeyPath       string
	APNsKeyID         string
	APNsTeamID        string
	APNsBundleID      string
	APNsProduction    bool
	HRDeviceTokens    []string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioSMSFrom     string
	HRSMSNumbers      []string

	// Follow-up jobs
	ScheduleInterval time.Duration
	ExecuteInterval  time.Duration
	CallPause        time.Duration
	DefaultTimeZone  string
	DedupWindowDays  int
}

// LoadConfigFromEnv reads the environment, loading .env first when present.
// Variables already set in the environment win over .env.
func LoadConfigFromEnv() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		AutoMigrate: getenvBool("AUTO_MIGRATE", false),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		OpenAIAPIKey:        getenv("OPENAI_API_KEY", ""),
		OpenAIModel:         getenv("OPENAI_MODEL", "gpt-4o-mini"),
		AnalysisConcurrency: getenvIntClamped("ANALYSIS_CONCURRENCY", 4, 1, 16),

		ElevenLabsAPIKey:        getenv("ELEVENLABS_API_KEY", ""),
		ElevenLabsWebhookSecret: getenv("ELEVENLABS_WEBHOOK_SECRET", ""),
		ElevenLabsPhoneNumberID: getenv("ELEVENLABS_PHONE_NUMBER_ID", ""),
		ElevenLabsVoiceID:       getenv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		VoiceLanguage:           getenv("VOICE_LANGUAGE", "es"),

		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: getenvDuration("JWT_EXPIRY", 24*time.Hour),

		RedisURL: getenv("REDIS_URL", ""),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "followup.lifecycle"),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
		APNsKeyPath:       getenv("APNS_KEY_PATH", ""),
		APNsKeyID:         getenv("APNS_KEY_ID", ""),
		APNsTeamID:        getenv("APNS_TEAM_ID", ""),
		APNsBundleID:      getenv("APNS_BUNDLE_ID", ""),
		APNsProduction:    getenvBool("APNS_PRODUCTION", false),
		HRDeviceTokens:    parseList(os.Getenv("HR_DEVICE_TOKENS")),
		TwilioAccountSID:  getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioSMSFrom:     getenv("TWILIO_SMS_FROM", ""),
		HRSMSNumbers:      parseList(os.Getenv("HR_SMS_NUMBERS")),

		ScheduleInterval: getenvDuration("SCHEDULE_INTERVAL", 24*time.Hour),
		ExecuteInterval:  getenvDuration("EXECUTE_INTERVAL", 15*time.Minute),
		CallPause:        getenvDuration("CALL_PAUSE", 5*time.Second),
		DefaultTimeZone:  getenv("DEFAULT_TIME_ZONE", "UTC"),
		DedupWindowDays:  getenvIntClamped("DEDUP_WINDOW_DAYS", 30, 1, 365),
	}
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// getenvIntClamped returns def when unset or invalid, otherwise the value clamped to [min, max].
func getenvIntClamped(k string, def, min, max int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
