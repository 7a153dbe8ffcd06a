package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App   AppConfig
	Ai    AIConfig
	Chain ChainConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	RunLogFilePath     string // empty sends run logs to the main logger
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string // empty disables the bearer guard
	OtelEnabled        bool
	RunSnapshotTTL     time.Duration
	AnswerCacheTTL     time.Duration
}

type AIConfig struct {
	LLMProvider   string // "ollama" or "huggingface"
	BaseURL       string
	APIKey        string
	WorkerModel   string
	ManagerModel  string
	HealthTimeout time.Duration
}

type ChainConfig struct {
	ChunkSize     int
	ContextPolicy string // "raw" or "accumulate"
	PromptsFile   string // optional YAML override of the role prompts
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	model := getEnv("LLM_MODEL", "llama3.2")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "5000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			RunLogFilePath:     getEnv("RUN_LOG_FILE_PATH", "runs.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			RunSnapshotTTL:     getEnvAsDuration("RUN_SNAPSHOT_TTL", 30*time.Minute),
			AnswerCacheTTL:     getEnvAsDuration("ANSWER_CACHE_TTL", time.Hour),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			BaseURL:       getEnv("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:        getEnv("LLM_API_KEY", ""),
			WorkerModel:   getEnv("WORKER_MODEL", model),
			ManagerModel:  getEnv("MANAGER_MODEL", model),
			HealthTimeout: getEnvAsDuration("LLM_HEALTH_TIMEOUT", 5*time.Second),
		},
		Chain: ChainConfig{
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 2000),
			ContextPolicy: getEnv("CONTEXT_POLICY", "raw"),
			PromptsFile:   getEnv("PROMPTS_FILE", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
