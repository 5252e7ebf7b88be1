package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config carries every runtime knob, grouped by concern. All values come from
// the environment with working defaults for local compose setups.
type Config struct {
	Env       string
	Server    ServerConfig
	DB        DBConfig
	Embedder  ModelConfig
	Generator ModelConfig
	RAG       RAGConfig
	Cache     CacheConfig
	Ingest    IngestConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout int // seconds
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

// DSN renders the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// ModelConfig points at one Ollama endpoint and model.
type ModelConfig struct {
	URL     string
	Model   string
	Timeout int // seconds
}

type RAGConfig struct {
	DefaultTopK    int
	MaxTokens      int
	MaxReflections int
	MaxCorrections int
	Instructions   string
}

type CacheConfig struct {
	AnswerSize    int
	AnswerTTL     int // minutes
	EmbeddingSize int
}

type IngestConfig struct {
	PollInterval int     // seconds
	EmbedRate    float64 // upserts per second the worker may start
	EmbedBurst   int
}

type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "9020"),
			ShutdownTimeout: getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "yojana-db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "yojana_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "yojana_password"),
			Name:     getEnv("DB_NAME", "yojana_db"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Embedder: ModelConfig{
			URL:     getEnvWithAlt("OLLAMA_EMBED_URL", "OLLAMA_URL", "http://ollama:11434"),
			Model:   getEnv("EMBEDDING_MODEL", "embeddinggemma"),
			Timeout: getEnvInt("EMBED_TIMEOUT_SECONDS", 30),
		},
		Generator: ModelConfig{
			URL:     getEnvWithAlt("OLLAMA_CHAT_URL", "OLLAMA_URL", "http://ollama:11434"),
			Model:   getEnv("GENERATION_MODEL", "qwen3-8b"),
			Timeout: getEnvInt("GENERATE_TIMEOUT_SECONDS", 120),
		},
		RAG: RAGConfig{
			DefaultTopK:    getEnvInt("RAG_DEFAULT_TOP_K", 5),
			MaxTokens:      getEnvInt("RAG_DEFAULT_MAX_TOKENS", 1024),
			MaxReflections: getEnvInt("RAG_MAX_REFLECTIONS", 2),
			MaxCorrections: getEnvInt("RAG_MAX_CORRECTIONS", 2),
			Instructions:   getEnv("RAG_EXTRA_INSTRUCTIONS", "Reply in the same language as the query."),
		},
		Cache: CacheConfig{
			AnswerSize:    getEnvInt("RAG_ANSWER_CACHE_SIZE", 256),
			AnswerTTL:     getEnvInt("RAG_ANSWER_CACHE_TTL_MINUTES", 15),
			EmbeddingSize: getEnvInt("RAG_EMBED_CACHE_SIZE", 2048),
		},
		Ingest: IngestConfig{
			PollInterval: getEnvInt("INGEST_POLL_INTERVAL_SECONDS", 5),
			EmbedRate:    getEnvFloat("INGEST_EMBED_RATE", 2),
			EmbedBurst:   getEnvInt("INGEST_EMBED_BURST", 4),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "yojana-orchestrator"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret resolves a value from the environment or, failing that, from the
// file named by fileEnvKey. Compose secrets mount as files.
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
