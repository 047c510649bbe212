package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable through KG_STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	LogLevel      string
	LogFormat     string
	// PublicBaseURL prefixes links encoded into registration QR codes.
	PublicBaseURL string
	// BootstrapAdmin is created at startup when it does not exist yet.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Store selects and configures the document store backend.
type Store struct {
	Backend       string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	SQLitePath    string
	Timeout       time.Duration
}

// RedisConfig configures the optional Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the domain event sink. No brokers means events stay in
// process.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Enrollment holds the tunables of the enrollment workflows.
type Enrollment struct {
	RequireOpenWindow bool
	MaxUpdateAttempts int
	SweepInterval     time.Duration
	RankingCacheTTL   time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server     Server
	Store      Store
	Redis      RedisConfig
	Kafka      Kafka
	Enrollment Enrollment
}

// FromEnv builds the configuration from environment variables. A .env file in
// the working directory is loaded first when present; real environment
// variables take precedence over it.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	var errs []string
	duration := func(key string, def time.Duration) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return n
	}

	cfg := Config{
		Server: Server{
			Addr:          getenv("KG_ADDR", ":8080"),
			JWTSigningKey: getenv("KG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			LogLevel:      getenv("KG_LOG_LEVEL", "info"),
			LogFormat:     getenv("KG_LOG_FORMAT", "json"),
			PublicBaseURL: strings.TrimRight(getenv("KG_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

			BootstrapAdminEmail:    os.Getenv("KG_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("KG_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Store: Store{
			Backend:       strings.ToLower(getenv("KG_STORE_BACKEND", BackendMemory)),
			MongoURI:      os.Getenv("KG_MONGO_URI"),
			MongoDatabase: getenv("KG_MONGO_DATABASE", "kindergarten"),
			PostgresDSN:   os.Getenv("KG_POSTGRES_DSN"),
			SQLitePath:    getenv("KG_SQLITE_PATH", "kindergarten.db"),
			Timeout:       duration("KG_STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("KG_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("KG_KAFKA_BROKERS")),
			Topic:   getenv("KG_KAFKA_TOPIC", "kindergarten.events"),
		},
		Enrollment: Enrollment{
			RequireOpenWindow: os.Getenv("KG_REQUIRE_OPEN_WINDOW") == "true",
			MaxUpdateAttempts: integer("KG_MAX_UPDATE_ATTEMPTS", 5),
			SweepInterval:     duration("KG_SWEEP_INTERVAL", 0),
			RankingCacheTTL:   duration("KG_RANKING_CACHE_TTL", time.Minute),
		},
	}

	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendMongo:
		if cfg.Store.MongoURI == "" {
			errs = append(errs, "KG_MONGO_URI is required for the mongo backend")
		}
	case BackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, "KG_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("KG_STORE_BACKEND: unknown backend %q", cfg.Store.Backend))
	}
	if cfg.Server.BootstrapAdminEmail != "" && cfg.Server.BootstrapAdminPassword == "" {
		errs = append(errs, "KG_BOOTSTRAP_ADMIN_PASSWORD is required with KG_BOOTSTRAP_ADMIN_EMAIL")
	}
	if cfg.Enrollment.MaxUpdateAttempts < 1 {
		errs = append(errs, "KG_MAX_UPDATE_ATTEMPTS must be at least 1")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
