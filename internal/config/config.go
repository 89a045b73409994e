package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CLAUSEBANK_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CLAUSEBANK_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// EmbeddingURL returns the base URL of the embedding service. Empty means
// semantic retrieval is disabled and the engine runs keyword-only.
func EmbeddingURL() string {
	return os.Getenv("EMBEDDING_URL")
}

// EmbeddingModel defaults to nomic-embed-text, the common local choice.
func EmbeddingModel() string {
	m := os.Getenv("EMBEDDING_MODEL")
	if m == "" {
		return "nomic-embed-text"
	}
	return m
}

// DecayInterval returns how often the background decay run fires.
// Defaults to 1h if not set.
func DecayInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("DECAY_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// DecayFloor returns the confidence below which clauses are archived.
// Defaults to 0.1 if not set.
func DecayFloor() float64 {
	f, err := strconv.ParseFloat(os.Getenv("DECAY_FLOOR"), 64)
	if err != nil || f <= 0 || f >= 1 {
		return 0.1
	}
	return f
}

// DedupThreshold returns the minimum fuzzy similarity treated as a duplicate.
// Defaults to 0.85 if not set.
func DedupThreshold() float64 {
	t, err := strconv.ParseFloat(os.Getenv("DEDUP_THRESHOLD"), 64)
	if err != nil || t <= 0 || t > 1 {
		return 0.85
	}
	return t
}

// DedupPolicy returns what happens to duplicate candidates.
// Defaults to "reinforce". Valid values: reinforce, skip, merge.
func DedupPolicy() string {
	p := os.Getenv("DEDUP_POLICY")
	if p == "" {
		return "reinforce"
	}
	return p
}

// ConflictStrategy returns the default resolution strategy.
// Defaults to "merge_history".
func ConflictStrategy() string {
	s := os.Getenv("CONFLICT_STRATEGY")
	if s == "" {
		return "merge_history"
	}
	return s
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
