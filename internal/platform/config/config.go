package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean. Values come
// from the environment with development defaults; production deployments
// override them.
type Config struct {
	Addr      string
	LogFormat string // "text" or "json"

	PostgresDSN string
	RedisURL    string

	// Master secret for the static keyring; individual key versions are
	// derived from it. Replace with an external KMS-backed provider in
	// production.
	KeyringSecret  string
	KeyringVersion int

	SimilarityThreshold int
	MinEnrollQuality    int

	CaptureMinBytes int
	CaptureMaxBytes int

	RateLimitMax    int
	RateLimitWindow time.Duration

	TemplateValidity time.Duration
	SweepInterval    time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:      envStr("VERIPRINT_ADDR", ":8080"),
		LogFormat: envStr("VERIPRINT_LOG_FORMAT", "text"),

		PostgresDSN: os.Getenv("VERIPRINT_POSTGRES_DSN"),
		RedisURL:    os.Getenv("VERIPRINT_REDIS_URL"),

		KeyringSecret:  envStr("VERIPRINT_KEYRING_SECRET", "dev-keyring-secret-change-in-production"),
		KeyringVersion: envInt("VERIPRINT_KEYRING_VERSION", 1),

		SimilarityThreshold: envInt("VERIPRINT_SIMILARITY_THRESHOLD", 80),
		MinEnrollQuality:    envInt("VERIPRINT_MIN_ENROLL_QUALITY", 40),

		CaptureMinBytes: envInt("VERIPRINT_CAPTURE_MIN_BYTES", 100),
		CaptureMaxBytes: envInt("VERIPRINT_CAPTURE_MAX_BYTES", 1<<20),

		RateLimitMax:    envInt("VERIPRINT_RATELIMIT_MAX", 5),
		RateLimitWindow: envDuration("VERIPRINT_RATELIMIT_WINDOW", time.Minute),

		TemplateValidity: envDuration("VERIPRINT_TEMPLATE_VALIDITY", 2*365*24*time.Hour),
		SweepInterval:    envDuration("VERIPRINT_SWEEP_INTERVAL", time.Hour),

		KafkaBrokers: envList("VERIPRINT_KAFKA_BROKERS"),
		KafkaTopic:   envStr("VERIPRINT_KAFKA_TOPIC", "veriprint.audit"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
