package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv                  string
	ServiceName             string
	ServiceVersion          string
	HTTPAddr                string
	DBURL                   string
	DBDisablePreparedBinary bool
	StorageBackend          string
	CacheEnabled            bool
	CacheTTL                time.Duration
	RedisEnabled            bool
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	CORSAllowedOrigins      []string
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	MetricsEnabled          bool
	SwaggerEnabled          bool
	PprofEnabled            bool
	PprofAddr               string

	LearnAPIBaseURL               string
	LearnAPIServiceKey            string
	LearnAPITimeout               time.Duration
	LearnAPIUploadTimeout         time.Duration
	LearnAPIMaxRetries            int
	LearnAPIRateLimit             float64
	LearnAPIRateBurst             int
	LearnAPITokenCacheTTL         time.Duration
	LearnAPICircuitEnabled        bool
	LearnAPICircuitFailureCount   int
	LearnAPICircuitOpenTimeout    time.Duration
	LearnAPICircuitHalfOpenMaxReq int
	OptionPageSize                int
	OnboardingSyncTimeout         time.Duration
	OnboardingUploadTimeout       time.Duration
	MediaDir                      string
	MediaMaxBytes                 int64
	OutboxBackoffBase             time.Duration
	OutboxBackoffMax              time.Duration
	OutboxMaxAttempts             int
	OutboxWorkers                 int
	OutboxBatchSize               int
	OutboxFlushSchedule           string

	UptraceEnabled             bool
	UptraceDSN                 string
	UptraceLogsEnabled         bool
	BetterStackEnabled         bool
	BetterStackEndpoint        string
	BetterStackToken           string
	BetterStackTimeout         time.Duration
	BetterStackMinLevel        logging.Level
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration

	InternalJobToken            string
	QStashEnabled               bool
	QStashBaseURL               string
	QStashToken                 string
	QStashTargetBaseURL         string
	QStashRetries               int
	QStashCircuitEnabled        bool
	QStashCircuitFailureCount   int
	QStashCircuitOpenTimeout    time.Duration
	QStashCircuitHalfOpenMaxReq int

	LogLevel logging.Level
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// LoadDotEnv reads path (".env" when empty) into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:              appEnv,
		ServiceName:         getEnv("APP_SERVICE_NAME", "learnhub-onboarding-api"),
		ServiceVersion:      getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:            getEnv("APP_HTTP_ADDR", ":8080"),
		DBURL:               strings.TrimSpace(getEnv("DB_URL", "")),
		CORSAllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		PprofAddr:           strings.TrimSpace(getEnv("PPROF_ADDR", ":6060")),
		RedisAddr:           strings.TrimSpace(getEnv("REDIS_ADDR", "localhost:6379")),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		LearnAPIBaseURL:     strings.TrimRight(strings.TrimSpace(getEnv("LEARNAPI_BASE_URL", "http://localhost:3000/api")), "/"),
		LearnAPIServiceKey:  strings.TrimSpace(getEnv("LEARNAPI_SERVICE_KEY", "")),
		MediaDir:            strings.TrimSpace(getEnv("MEDIA_DIR", "./var/media")),
		OutboxFlushSchedule: strings.TrimSpace(getEnv("OUTBOX_FLUSH_SCHEDULE", "@every 1m")),
		UptraceDSN:          strings.TrimSpace(getEnv("UPTRACE_DSN", "")),
		BetterStackEndpoint: strings.TrimSpace(getEnv("BETTERSTACK_ENDPOINT", "")),
		BetterStackToken:    strings.TrimSpace(getEnv("BETTERSTACK_TOKEN", "")),
		BetterStackMinLevel: logging.ParseLevel(getEnv("BETTERSTACK_MIN_LEVEL", "error")),

		PyroscopeServerAddress:     strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", "")),
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),

		InternalJobToken:    strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", "")),
		QStashBaseURL:       strings.TrimSpace(getEnv("QSTASH_BASE_URL", "https://qstash.upstash.io")),
		QStashToken:         strings.TrimSpace(getEnv("QSTASH_TOKEN", "")),
		QStashTargetBaseURL: strings.TrimSpace(getEnv("QSTASH_TARGET_BASE_URL", "")),

		LogLevel: logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
	}
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))

	p := parser{}
	cfg.DBDisablePreparedBinary = p.bool("DB_DISABLE_PREPARED_BINARY_RESULT", true)
	cfg.CacheEnabled = p.bool("CACHE_ENABLED", true)
	cfg.CacheTTL = p.positiveDuration("CACHE_TTL", 10*time.Minute)
	cfg.RedisEnabled = p.bool("REDIS_ENABLED", false)
	cfg.RedisDB = p.intAtLeast("REDIS_DB", 0, 0)
	cfg.ReadTimeout = p.positiveDuration("APP_READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = p.positiveDuration("APP_WRITE_TIMEOUT", 45*time.Second)
	cfg.MetricsEnabled = p.bool("METRICS_ENABLED", true)
	cfg.PprofEnabled = p.bool("PPROF_ENABLED", false)
	cfg.SwaggerEnabled = p.bool("SWAGGER_ENABLED", cfg.AppEnv != EnvProd)

	cfg.LearnAPITimeout = p.positiveDuration("LEARNAPI_TIMEOUT", 10*time.Second)
	cfg.LearnAPIUploadTimeout = p.positiveDuration("LEARNAPI_UPLOAD_TIMEOUT", 30*time.Second)
	cfg.LearnAPIMaxRetries = p.intAtLeast("LEARNAPI_MAX_RETRIES", 1, 0)
	cfg.LearnAPIRateLimit = p.float("LEARNAPI_RATE_LIMIT", 20)
	cfg.LearnAPIRateBurst = p.intAtLeast("LEARNAPI_RATE_BURST", 10, 1)
	cfg.LearnAPITokenCacheTTL = p.positiveDuration("LEARNAPI_TOKEN_CACHE_TTL", time.Minute)
	cfg.LearnAPICircuitEnabled = p.bool("LEARNAPI_CIRCUIT_ENABLED", true)
	cfg.LearnAPICircuitFailureCount = p.intAtLeast("LEARNAPI_CIRCUIT_FAILURE_COUNT", 5, 1)
	cfg.LearnAPICircuitOpenTimeout = p.positiveDuration("LEARNAPI_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	cfg.LearnAPICircuitHalfOpenMaxReq = p.intAtLeast("LEARNAPI_CIRCUIT_HALF_OPEN_MAX_REQ", 2, 1)
	cfg.OptionPageSize = p.intAtLeast("ONBOARDING_OPTION_PAGE_SIZE", 100, 1)
	cfg.OnboardingSyncTimeout = p.positiveDuration("ONBOARDING_SYNC_TIMEOUT", 10*time.Second)
	cfg.OnboardingUploadTimeout = p.positiveDuration("ONBOARDING_UPLOAD_TIMEOUT", 30*time.Second)
	cfg.MediaMaxBytes = int64(p.intAtLeast("MEDIA_MAX_BYTES", 8<<20, 1))
	cfg.OutboxBackoffBase = p.positiveDuration("OUTBOX_BACKOFF_BASE", 30*time.Second)
	cfg.OutboxBackoffMax = p.positiveDuration("OUTBOX_BACKOFF_MAX", 30*time.Minute)
	cfg.OutboxMaxAttempts = p.intAtLeast("OUTBOX_MAX_ATTEMPTS", 8, 1)
	cfg.OutboxWorkers = p.intAtLeast("OUTBOX_WORKERS", 4, 1)
	cfg.OutboxBatchSize = p.intAtLeast("OUTBOX_BATCH_SIZE", 100, 1)

	cfg.UptraceEnabled = p.bool("UPTRACE_ENABLED", false)
	cfg.UptraceLogsEnabled = p.bool("UPTRACE_LOGS_ENABLED", true)
	cfg.BetterStackEnabled = p.bool("BETTERSTACK_ENABLED", false)
	cfg.BetterStackTimeout = p.positiveDuration("BETTERSTACK_TIMEOUT", 3*time.Second)
	cfg.PyroscopeEnabled = p.bool("PYROSCOPE_ENABLED", false)
	cfg.PyroscopeUploadRate = p.positiveDuration("PYROSCOPE_UPLOAD_RATE", 15*time.Second)

	cfg.QStashEnabled = p.bool("QSTASH_ENABLED", false)
	cfg.QStashRetries = p.intAtLeast("QSTASH_RETRIES", 3, 0)
	cfg.QStashCircuitEnabled = p.bool("QSTASH_CIRCUIT_ENABLED", true)
	cfg.QStashCircuitFailureCount = p.intAtLeast("QSTASH_CIRCUIT_FAILURE_COUNT", 5, 1)
	cfg.QStashCircuitOpenTimeout = p.positiveDuration("QSTASH_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	cfg.QStashCircuitHalfOpenMaxReq = p.intAtLeast("QSTASH_CIRCUIT_HALF_OPEN_MAX_REQ", 2, 1)
	if p.err != nil {
		return Config{}, p.err
	}

	storage, err := parseStorageBackend(getEnv("STORAGE_BACKEND", ""), cfg.DBURL)
	if err != nil {
		return Config{}, err
	}
	cfg.StorageBackend = storage

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	if cfg.StorageBackend == StoragePostgres && cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required when STORAGE_BACKEND=postgres")
	}
	if cfg.LearnAPIBaseURL == "" {
		return fmt.Errorf("LEARNAPI_BASE_URL cannot be empty")
	}
	if cfg.LearnAPIRateLimit < 0 {
		return fmt.Errorf("LEARNAPI_RATE_LIMIT must be >= 0")
	}
	if cfg.MediaDir == "" {
		return fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if cfg.OutboxBackoffMax < cfg.OutboxBackoffBase {
		return fmt.Errorf("OUTBOX_BACKOFF_MAX must be >= OUTBOX_BACKOFF_BASE")
	}
	if cfg.OutboxFlushSchedule != "" {
		if _, err := cron.ParseStandard(cfg.OutboxFlushSchedule); err != nil {
			return fmt.Errorf("parse OUTBOX_FLUSH_SCHEDULE: %w", err)
		}
	}
	if cfg.RedisEnabled && cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if cfg.PprofEnabled && cfg.PprofAddr == "" {
		return fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.BetterStackEnabled && cfg.BetterStackEndpoint == "" {
		return fmt.Errorf("BETTERSTACK_ENDPOINT is required when BETTERSTACK_ENABLED=true")
	}
	if cfg.PyroscopeEnabled {
		if cfg.PyroscopeServerAddress == "" {
			return fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
		}
		if cfg.PyroscopeAppName == "" {
			return fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
		}
	}
	if cfg.QStashEnabled {
		if cfg.QStashToken == "" {
			return fmt.Errorf("QSTASH_TOKEN is required when QSTASH_ENABLED=true")
		}
		if cfg.QStashTargetBaseURL == "" {
			return fmt.Errorf("QSTASH_TARGET_BASE_URL is required when QSTASH_ENABLED=true")
		}
		if cfg.InternalJobToken == "" {
			return fmt.Errorf("INTERNAL_JOB_TOKEN is required when QSTASH_ENABLED=true")
		}
	}
	return nil
}

// parser keeps the first parse error so Load can read every key in sequence.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func (p *parser) bool(key string, fallback bool) bool {
	out, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return out
}

func (p *parser) positiveDuration(key string, fallback time.Duration) time.Duration {
	out, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	if out <= 0 {
		p.fail(key, fmt.Errorf("must be > 0"))
		return fallback
	}
	return out
}

func (p *parser) intAtLeast(key string, fallback, minimum int) int {
	out, err := getEnvAsInt(key, fallback)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	if out < minimum {
		p.fail(key, fmt.Errorf("must be >= %d", minimum))
		return fallback
	}
	return out
}

func (p *parser) float(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return out
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	for _, item := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			return strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		}
	}

	return ""
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

// parseStorageBackend defaults to postgres when DB_URL is set.
func parseStorageBackend(v, dbURL string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case "":
		if strings.TrimSpace(dbURL) != "" {
			return StoragePostgres, nil
		}
		return StorageMemory, nil
	case StorageMemory, StoragePostgres:
		return value, nil
	default:
		return "", fmt.Errorf("invalid STORAGE_BACKEND %q: valid values are %s, %s", v, StorageMemory, StoragePostgres)
	}
}
