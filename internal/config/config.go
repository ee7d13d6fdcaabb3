package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	AdminAddr string
	RedisAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Platforms enabled for sync passes, e.g. "TWITCH,YOUTUBE,TWITTER".
	Platforms []string

	Worker WorkerConfig
	Credit CreditConfig
}

// WorkerConfig controls the sync worker loop.
type WorkerConfig struct {
	RunInterval          time.Duration
	BatchSize            int
	FetchTimeout         time.Duration
	CallDelay            time.Duration
	StuckThreshold       time.Duration
	SweepPageSize        int
	DiscoveredPriority   int
	DedupRefreshInterval time.Duration
	EnabledJobs          []string
}

// CreditConfig carries per-provider daily quotas and per-call costs.
// Entries are keyed by upper-cased platform name; DefaultQuota applies to
// any provider without an explicit entry (0 means unlimited).
type CreditConfig struct {
	DefaultQuota int
	Quotas       map[string]int
	Costs        map[string]int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "envisioner-discovery"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		AdminAddr: getenv("ADMIN_ADDR", ":8087"),
		RedisAddr: strings.TrimSpace(getenv("REDIS_ADDR", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "discovery"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Platforms: parseList(getenv("PLATFORMS", "TWITCH,YOUTUBE,TWITTER,INSTAGRAM,TIKTOK,KICK")),

		Worker: WorkerConfig{
			RunInterval:          getenvDuration("WORKER_RUN_INTERVAL", 5*time.Minute),
			BatchSize:            getenvInt("WORKER_BATCH_SIZE", 25),
			FetchTimeout:         getenvDuration("WORKER_FETCH_TIMEOUT", 10*time.Second),
			CallDelay:            getenvDuration("WORKER_CALL_DELAY", 500*time.Millisecond),
			StuckThreshold:       getenvDuration("WORKER_STUCK_THRESHOLD", 30*time.Minute),
			SweepPageSize:        getenvInt("WORKER_SWEEP_PAGE_SIZE", 500),
			DiscoveredPriority:   getenvInt("WORKER_DISCOVERED_PRIORITY", 10),
			DedupRefreshInterval: getenvDuration("DEDUP_REFRESH_INTERVAL", time.Hour),
			EnabledJobs:          parseList(getenv("WORKER_ENABLED_JOBS", "")),
		},
		Credit: CreditConfig{
			DefaultQuota: getenvInt("CREDIT_DAILY_QUOTA", 10000),
			Quotas:       parseIntMap(getenv("CREDIT_QUOTAS", "")),
			Costs:        parseIntMap(getenv("CREDIT_COSTS", "")),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseIntMap parses "TWITCH=5000,YOUTUBE=10000" style values.
func parseIntMap(raw string) map[string]int {
	out := map[string]int{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(key))] = parsed
	}
	return out
}
