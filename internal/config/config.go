package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	LogMode  string

	// Job store
	DBDriver string // "sqlite" or "mysql"
	DBDSN    string

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Work queue. When RabbitURL is empty the server runs an in-process pool.
	RabbitURL   string
	RabbitQueue string

	WorkerConcurrency int

	// Engine tunables
	OwnerJobCap      int
	SectionBatchSize int
	RetentionTTL     time.Duration
	SectionDelay     time.Duration
	ProviderTimeout  time.Duration

	// Text generation provider
	LLMProvider       string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string

	// Search providers
	BraveBaseURL        string
	BraveAPIKey         string
	PerplexityBaseURL   string
	PerplexityAPIKey    string
	PerplexityModel     string
	SemanticScholarBase string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func Load() Config {
	_ = godotenv.Load()

	ownerCap := getint("OWNER_JOB_CAP", 5)
	if ownerCap <= 0 {
		ownerCap = 5
	}

	batch := getint("SECTION_BATCH_SIZE", 3)
	if batch <= 0 {
		batch = 3
	}

	concurrency := getint("WORKER_CONCURRENCY", 2)
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}

	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		LogMode:  getenv("LOG_MODE", "dev"),

		DBDriver: getenv("DB_DRIVER", "sqlite"),
		DBDSN:    getenv("DB_DSN", "file:engine.db?cache=shared"),

		JWTSecret: getenv("JWT_SECRET", "dev-secret-change-me"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getenv("RABBIT_QUEUE", "content_jobs"),

		WorkerConcurrency: concurrency,

		OwnerJobCap:      ownerCap,
		SectionBatchSize: batch,
		RetentionTTL:     getdur("JOB_RETENTION_TTL", 24*time.Hour),
		SectionDelay:     getdur("SECTION_DELAY", 500*time.Millisecond),
		ProviderTimeout:  getdur("PROVIDER_TIMEOUT", 90*time.Second),

		LLMProvider:       getenv("LLM_PROVIDER", "ollama"),
		OllamaBaseURL:     getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getenv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getenv("OPENROUTER_MODEL", "openrouter/auto"),

		BraveBaseURL:        getenv("BRAVE_BASE_URL", "https://api.search.brave.com/res/v1"),
		BraveAPIKey:         os.Getenv("BRAVE_API_KEY"),
		PerplexityBaseURL:   getenv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
		PerplexityAPIKey:    os.Getenv("PERPLEXITY_API_KEY"),
		PerplexityModel:     getenv("PERPLEXITY_MODEL", "sonar"),
		SemanticScholarBase: getenv("SEMANTIC_SCHOLAR_BASE_URL", "https://api.semanticscholar.org/graph/v1"),
	}
}
