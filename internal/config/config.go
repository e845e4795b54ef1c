package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	SLA      SLAConfig
	Dispatch DispatchConfig
	Channels ChannelConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters. Operator tokens are minted by
// the external identity service; the engine only verifies them. APIKeyHash is
// a bcrypt hash checked against X-API-Key on machine-to-machine endpoints.
type AuthConfig struct {
	JWTSecret  string
	APIKeyHash string
}

// SLAConfig controls the violation sweep and severity classification.
// Severity thresholds are overshoot ratios relative to the target duration:
// delay/target < MinorMaxRatio is minor, up to MajorMaxRatio is major,
// anything above is critical.
type SLAConfig struct {
	SweepIntervalSeconds int
	SweepBatchSize       int
	MinorMaxRatio        float64
	MajorMaxRatio        float64
	// EscalationContacts is the ordered tier list automatic escalations walk
	// through; the last entry absorbs every level beyond the list.
	EscalationContacts []string
}

// DispatchConfig controls notification delivery.
type DispatchConfig struct {
	ChannelTimeoutSeconds int
	DelayPollSeconds      int
	DelayBatchSize        int
}

// ChannelConfig holds per-channel transport settings.
type ChannelConfig struct {
	Email            EmailConfig
	ChatWebhookURL   string
	WebhookSecret    string
	WebhookEndpoints map[string]string
}

// EmailConfig holds SMTP relay settings.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			APIKeyHash: os.Getenv("AUTH_API_KEY_HASH"),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 300),
			SweepBatchSize:       getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 500),
			MinorMaxRatio:        getEnvAsFloat("SLA_SEVERITY_MINOR_MAX_RATIO", 0.25),
			MajorMaxRatio:        getEnvAsFloat("SLA_SEVERITY_MAJOR_MAX_RATIO", 1.0),
			EscalationContacts:   parseList(os.Getenv("SLA_ESCALATION_CONTACTS")),
		},
		Dispatch: DispatchConfig{
			ChannelTimeoutSeconds: getEnvAsInt("DISPATCH_CHANNEL_TIMEOUT_SECONDS", 10),
			DelayPollSeconds:      getEnvAsInt("DISPATCH_DELAY_POLL_SECONDS", 30),
			DelayBatchSize:        getEnvAsInt("DISPATCH_DELAY_BATCH_SIZE", 100),
		},
		Channels: ChannelConfig{
			Email: EmailConfig{
				Host:     getEnv("NOTIFY_SMTP_HOST", ""),
				Port:     getEnv("NOTIFY_SMTP_PORT", "587"),
				Username: os.Getenv("NOTIFY_SMTP_USERNAME"),
				Password: os.Getenv("NOTIFY_SMTP_PASSWORD"),
				From:     getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			},
			ChatWebhookURL:   getEnv("NOTIFY_CHAT_WEBHOOK_URL", ""),
			WebhookSecret:    os.Getenv("NOTIFY_WEBHOOK_SECRET"),
			WebhookEndpoints: parseEndpointMap(os.Getenv("NOTIFY_WEBHOOK_ENDPOINTS")),
		},
	}

	if cfg.SLA.MinorMaxRatio <= 0 || cfg.SLA.MajorMaxRatio <= cfg.SLA.MinorMaxRatio {
		return nil, fmt.Errorf("severity thresholds must satisfy 0 < minor < major (got %v, %v)",
			cfg.SLA.MinorMaxRatio, cfg.SLA.MajorMaxRatio)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the detector tick interval.
func (s SLAConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ChannelTimeout returns the per-delivery-attempt timeout.
func (d DispatchConfig) ChannelTimeout() time.Duration {
	return time.Duration(d.ChannelTimeoutSeconds) * time.Second
}

// DelayPollInterval returns the delayed-dispatch poll interval.
func (d DispatchConfig) DelayPollInterval() time.Duration {
	return time.Duration(d.DelayPollSeconds) * time.Second
}

// parseList splits a comma separated value, dropping empty entries.
func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// parseEndpointMap parses "name=url,name2=url2" pairs.
func parseEndpointMap(raw string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return endpoints
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
