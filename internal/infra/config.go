package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	JWTSecret        string
	StoragePath      string
	StorageBaseURL   string
	GeoIPDBPath      string
	DefaultLocale    string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string

	DashScopeAPIKey   string
	DashScopeBaseURL  string
	DashScopeRPS      float64
	ImageModel        string
	VideoModel        string
	TextModel         string
	ProviderTimeout   time.Duration
	SyntheticProvider bool

	PollInterval           time.Duration
	PollTimeout            time.Duration
	PollMaxTransientErrors int
	GalleryRetention       time.Duration
	SessionIdleTTL         time.Duration
	SweepInterval          time.Duration
	SweepBatchSize         int

	CreditBackend string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NotifyRedis   bool
	AMQPURL       string
	AMQPQueue     string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:       getEnvInt("DB_MIN_CONNS", 1),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),

		DashScopeAPIKey:   os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL:  getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		DashScopeRPS:      getEnvFloat("DASHSCOPE_REQUESTS_PER_SECOND", 2),
		ImageModel:        getEnv("IMAGE_MODEL", "qwen-image-plus"),
		VideoModel:        getEnv("VIDEO_MODEL", "wan2.1-t2v-turbo"),
		TextModel:         getEnv("TEXT_MODEL", "qwen-plus"),
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		SyntheticProvider: getEnvBool("SYNTHETIC_PROVIDER", false),

		PollInterval:           getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PollTimeout:            getEnvDuration("POLL_TIMEOUT", 5*time.Minute),
		PollMaxTransientErrors: getEnvInt("POLL_MAX_TRANSIENT_FAILURES", 3),
		GalleryRetention:       getEnvDuration("GALLERY_RETENTION", 7*24*time.Hour),
		SessionIdleTTL:         getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SweepInterval:          getEnvDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:         getEnvInt("SWEEP_BATCH_SIZE", 100),

		CreditBackend: strings.ToLower(getEnv("CREDIT_BACKEND", "postgres")),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		NotifyRedis:   getEnvBool("NOTIFY_REDIS", false),
		AMQPURL:       os.Getenv("AMQP_URL"),
		AMQPQueue:     getEnv("AMQP_QUEUE", "generation_notices"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "generated-media"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.CreditBackend {
	case "postgres", "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CREDIT_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported CREDIT_BACKEND %q", cfg.CreditBackend)
	}

	if cfg.NotifyRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required when NOTIFY_REDIS is enabled")
	}

	if cfg.PollInterval <= 0 || cfg.PollTimeout < cfg.PollInterval {
		return nil, fmt.Errorf("POLL_TIMEOUT must be at least POLL_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
