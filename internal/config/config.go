package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port      string
	LogLevel  string
	LogFormat string // json or text

	// PPM backend
	PPMAPIURL        string
	PPMUIURL         string
	PPMAuthType      string // bearer, cookie or basic
	PPMAPIToken      string
	PPMSessionCookie string
	PPMUsername      string
	PPMPassword      string
	PPMTimeout       time.Duration
	PPMRetryCount    int
	PPMRetryBackoff  time.Duration
	PPMRateLimit     float64 // requests per second, 0 disables

	// Reasoning service
	ReasoningProvider string // openai or anthropic
	ReasoningAPIKey   string
	ReasoningAPIURL   string
	ReasoningModel    string
	ReasoningTimeout  time.Duration

	// Auth (tokens are issued elsewhere, empty secret disables verification)
	JWTSecret string

	// Conversations
	SessionTTL        time.Duration
	SweepInterval     time.Duration
	CapabilityRefresh time.Duration
	ReadOnly          bool

	// Audit trail
	AuditEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	// Tracing
	OTelStdout bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; real environment variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	return &Config{
		Port:      getEnv("PORT", "8097"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		PPMAPIURL:        strings.TrimRight(getEnv("PPM_API_URL", "http://localhost:8080/ppm/rest/v1"), "/"),
		PPMUIURL:         strings.TrimRight(getEnv("PPM_UI_URL", "http://localhost:8080"), "/"),
		PPMAuthType:      getEnv("PPM_AUTH_TYPE", "bearer"),
		PPMAPIToken:      getEnv("PPM_API_TOKEN", ""),
		PPMSessionCookie: getEnv("PPM_SESSION_COOKIE", ""),
		PPMUsername:      getEnv("PPM_USERNAME", ""),
		PPMPassword:      getEnv("PPM_PASSWORD", ""),
		PPMTimeout:       getDuration("PPM_TIMEOUT_SECONDS", 30, time.Second),
		PPMRetryCount:    getInt("PPM_RETRY_COUNT", 3),
		PPMRetryBackoff:  getDuration("PPM_RETRY_BACKOFF_MS", 500, time.Millisecond),
		PPMRateLimit:     getFloat("PPM_RATE_LIMIT", 10),

		ReasoningProvider: getEnv("REASONING_PROVIDER", "openai"),
		ReasoningAPIKey:   getEnv("REASONING_API_KEY", ""),
		ReasoningAPIURL:   getEnv("REASONING_API_URL", ""),
		ReasoningModel:    getEnv("REASONING_MODEL", "gpt-4o-mini"),
		ReasoningTimeout:  getDuration("REASONING_TIMEOUT_SECONDS", 60, time.Second),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SessionTTL:        getDuration("SESSION_TTL_MINUTES", 30, time.Minute),
		SweepInterval:     getDuration("SWEEP_INTERVAL_SECONDS", 60, time.Second),
		CapabilityRefresh: getDuration("CAPABILITY_REFRESH_SECONDS", 300, time.Second),
		ReadOnly:          getBool("READ_ONLY", false),

		AuditEnabled: getBool("AUDIT_ENABLED", false),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		DBName:       getEnv("DB_NAME", "ppmchat"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),

		OTelStdout: getBool("OTEL_STDOUT", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getInt(key, fallback)) * unit
}
