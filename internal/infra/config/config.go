package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int

	RedisURL       string
	HydrationTTL   time.Duration
	HydrationPool  int
	AliasCacheSize int
	AliasCacheTTL  time.Duration

	LexicalBackend   string
	MeilisearchURL   string
	MeilisearchKey   string
	MeilisearchIndex string
	SearchIndexerURL string

	OllamaURL        string
	EmbeddingModel   string
	EmbedTimeout     time.Duration
	GenerationURL    string
	GenerationModel  string
	GenerationNumCtx int
	RerankerURL      string
	RerankerModel    string
	RerankTimeout    time.Duration

	DefaultLocale string

	TenantConfigPath   string
	TenantConfigReload time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	OTelEnabled bool
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "retrieval-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "retrieval_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "retrieval_password"),
		DBName:     getEnv("DB_NAME", "retrieval_db"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 20),

		RedisURL:       getEnv("REDIS_URL", "redis://redis:6379/0"),
		HydrationTTL:   getEnvDuration("HYDRATION_CACHE_TTL", 15*time.Minute),
		HydrationPool:  getEnvInt("HYDRATION_POOL_SIZE", 64),
		AliasCacheSize: getEnvInt("ALIAS_CACHE_SIZE", 10000),
		AliasCacheTTL:  getEnvDuration("ALIAS_CACHE_TTL", 10*time.Minute),

		LexicalBackend:   getEnv("LEXICAL_BACKEND", "meilisearch"),
		MeilisearchURL:   getEnv("MEILISEARCH_URL", "http://meilisearch:7700"),
		MeilisearchKey:   getSecret("MEILISEARCH_API_KEY", "MEILISEARCH_API_KEY_FILE", ""),
		MeilisearchIndex: getEnv("MEILISEARCH_INDEX", "chunks"),
		SearchIndexerURL: getEnv("SEARCH_INDEXER_URL", "http://search-indexer:9300"),

		OllamaURL:        getEnvWithAlt("EMBEDDING_URL", "OLLAMA_URL", "http://ollama:11434"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		EmbedTimeout:     getEnvDuration("EMBEDDING_TIMEOUT", 2*time.Second),
		GenerationURL:    getEnvWithAlt("GENERATION_URL", "OLLAMA_URL", "http://ollama:11434"),
		GenerationModel:  getEnv("GENERATION_MODEL", "gemma3:4b"),
		GenerationNumCtx: getEnvInt("GENERATION_NUM_CTX", 8192),
		RerankerURL:      getEnv("RERANKER_URL", ""),
		RerankerModel:    getEnv("RERANKER_MODEL", "bge-reranker-v2-m3"),
		RerankTimeout:    getEnvDuration("RERANKER_TIMEOUT", 2*time.Second),

		DefaultLocale: getEnv("ANSWER_DEFAULT_LOCALE", "en"),

		TenantConfigPath:   getEnv("TENANT_CONFIG_PATH", ""),
		TenantConfigReload: getEnvDuration("TENANT_CONFIG_RELOAD_INTERVAL", 30*time.Second),

		RateLimitPerSecond: getEnvFloat64("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),

		OTelEnabled: getEnvBool("OTEL_ENABLED", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

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

func getEnvFloat64(key string, fallback float64) float64 {
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

// getEnvDuration accepts Go duration strings ("750ms") or whole seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
