package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	AdminAPIKey    string
	MaxUploadBytes int64
	MetricsEnabled bool

	LedgerDifficulty    int
	LedgerMinDifficulty int
	LedgerMiningTimeout time.Duration
	LedgerFile          string

	BloomExpectedItems     int
	BloomFalsePositiveRate float64

	RosterCSV           string
	MatchMode           string
	RequiredFields      []string
	AdmissionPolicyPath string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFormat:              envDefault("LOG_FORMAT", "json"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		MaxUploadBytes:         int64(envIntDefault("MAX_UPLOAD_BYTES", 16<<20)),
		MetricsEnabled:         envBoolDefault("METRICS_ENABLED", true),
		LedgerDifficulty:       envNonNegativeIntDefault("LEDGER_DIFFICULTY", 4),
		LedgerMinDifficulty:    envNonNegativeIntDefault("LEDGER_MIN_DIFFICULTY", 1),
		LedgerMiningTimeout:    envDurationDefault("LEDGER_MINING_TIMEOUT", 30*time.Second),
		LedgerFile:             os.Getenv("LEDGER_FILE"),
		BloomExpectedItems:     envIntDefault("BLOOM_EXPECTED_ITEMS", 100000),
		BloomFalsePositiveRate: envFloatDefault("BLOOM_FALSE_POSITIVE_RATE", 0.01),
		RosterCSV:              os.Getenv("ROSTER_CSV"),
		MatchMode:              envDefault("MATCH_MODE", "normalized"),
		RequiredFields:         envListDefault("REQUIRED_FIELDS", []string{"student_id"}),
		AdmissionPolicyPath:    os.Getenv("ADMISSION_POLICY_PATH"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// envNonNegativeIntDefault is envIntDefault that also accepts zero.
func envNonNegativeIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 || parsed >= 1 {
		return def
	}
	return parsed
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// envListDefault splits a comma-separated value. An explicit "none" yields an
// empty list.
func envListDefault(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if strings.EqualFold(v, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
