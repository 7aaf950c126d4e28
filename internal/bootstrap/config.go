package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string

	EmbeddingsURL    string
	EmbeddingsAPIKey string
	EmbeddingsModel  string
	EmbeddingsDim    int

	InferenceModel     string
	InferenceEndpoints []scanner.Endpoint

	ScanBaseInterval   time.Duration
	ScanSettleDelay    time.Duration
	ScanRequestTimeout time.Duration
	ScanQueueCapacity  int
	ScanStatsWindow    int

	FrameTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:   6334,
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),

		EmbeddingsURL:    getEnv("EMBEDDINGS_URL", ""),
		EmbeddingsAPIKey: getEnv("EMBEDDINGS_API_KEY", ""),
		EmbeddingsModel:  getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsDim:    getEnvInt("EMBEDDINGS_DIM", 1536),

		InferenceModel:     getEnv("INFERENCE_MODEL", "llava"),
		InferenceEndpoints: parseEndpoints(getEnv("INFERENCE_ENDPOINTS", "local|generate|http://localhost:11434/api/generate")),

		ScanBaseInterval:   time.Duration(getEnvInt("SCAN_BASE_INTERVAL_MS", 3000)) * time.Millisecond,
		ScanSettleDelay:    time.Duration(getEnvInt("SCAN_SETTLE_DELAY_MS", 100)) * time.Millisecond,
		ScanRequestTimeout: time.Duration(getEnvInt("SCAN_REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		ScanQueueCapacity:  getEnvInt("SCAN_QUEUE_CAPACITY", 2),
		ScanStatsWindow:    getEnvInt("SCAN_STATS_WINDOW", 10),

		FrameTTL: time.Duration(getEnvInt("FRAME_TTL_SECONDS", 600)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// parseEndpoints reads a comma-separated list of name|kind|url triples,
// in failover order. Entries that don't parse are skipped.
func parseEndpoints(envValue string) []scanner.Endpoint {
	var endpoints []scanner.Endpoint
	for _, entry := range strings.Split(envValue, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "|", 3)
		if len(parts) != 3 {
			continue
		}
		endpoints = append(endpoints, scanner.Endpoint{
			Name: parts[0],
			Kind: parts[1],
			URL:  parts[2],
		})
	}
	return endpoints
}
