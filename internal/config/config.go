// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, store connection strings, the command
// prefix, auto-status defaults, and connection lifecycle tuning.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-wa-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AutoStatusConfig holds the default auto-status toggles applied to a user
// whose settings document does not exist yet.
type AutoStatusConfig struct {
	Seen  bool // AUTO_STATUS_SEEN
	React bool // AUTO_STATUS_REACT
	Reply bool // AUTO_STATUS_REPLY
}

// LifecycleConfig tunes the per-session connection state machine.
type LifecycleConfig struct {
	MaxReconnectAttempts int           // cap on consecutive reconnects before termination
	ReconnectStep        time.Duration // delay before attempt k is k × ReconnectStep
	PairingCodeTTL       time.Duration // validity window of an issued pairing code
	SettleDelay          time.Duration // wait before requesting a code / sending the welcome notice
	SessionTTL           time.Duration // durable session record expiry (store-enforced)
	SnapshotInterval     time.Duration // stats snapshot cadence
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Stores
	MongoURI string // MONGO_URI connection string
	MongoDB  string // database name
	WADBPath string // directory for whatsmeow sqlite credential stores

	// Bot identity / dispatch
	Prefix      string   // default command prefix
	BotName     string   // display name used in notices and the menu
	OwnerName   string   // display name of the bot owner
	ChannelJIDs []string // default newsletter channels followed on open

	AutoStatus AutoStatusConfig
	Lifecycle  LifecycleConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Stores
		MongoURI: getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getenv("MONGO_DB", "wa_gateway"),
		WADBPath: getenv("WA_DB_PATH", "data/sessions"),

		// Bot identity / dispatch
		Prefix:      getenv("PREFIX", "."),
		BotName:     getenv("BOT_NAME", "WA Gateway"),
		OwnerName:   getenv("OWNER_NAME", "Owner"),
		ChannelJIDs: splitCSV(getenv("CHANNEL_JIDS", "")),

		AutoStatus: AutoStatusConfig{
			Seen:  getbool("AUTO_STATUS_SEEN", true),
			React: getbool("AUTO_STATUS_REACT", false),
			Reply: getbool("AUTO_STATUS_REPLY", false),
		},

		Lifecycle: LifecycleConfig{
			MaxReconnectAttempts: getint("MAX_RECONNECT_ATTEMPTS", 3),
			ReconnectStep:        getdur("RECONNECT_STEP", 5*time.Second),
			PairingCodeTTL:       getdur("PAIRING_CODE_TTL", 2*time.Minute),
			SettleDelay:          getdur("SETTLE_DELAY", 3*time.Second),
			SessionTTL:           getdur("SESSION_TTL", 30*24*time.Hour),
			SnapshotInterval:     getdur("STATS_SNAPSHOT_INTERVAL", 30*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-wa-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return cfg, errors.New("MONGO_URI must not be empty")
	}
	if strings.TrimSpace(cfg.MongoDB) == "" {
		return cfg, errors.New("MONGO_DB must not be empty")
	}
	if strings.TrimSpace(cfg.WADBPath) == "" {
		return cfg, errors.New("WA_DB_PATH must not be empty")
	}
	if cfg.Prefix == "" {
		return cfg, errors.New("PREFIX must not be empty")
	}
	if cfg.Lifecycle.MaxReconnectAttempts < 0 {
		return cfg, errors.New("MAX_RECONNECT_ATTEMPTS must be >= 0")
	}
	if cfg.Lifecycle.ReconnectStep <= 0 {
		return cfg, errors.New("RECONNECT_STEP must be > 0")
	}
	if cfg.Lifecycle.PairingCodeTTL <= 0 {
		return cfg, errors.New("PAIRING_CODE_TTL must be > 0")
	}
	if cfg.Lifecycle.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.Lifecycle.SnapshotInterval <= 0 {
		return cfg, errors.New("STATS_SNAPSHOT_INTERVAL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
