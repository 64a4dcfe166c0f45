package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/local/pdftutor/api/services"
)

type Config struct {
	ModelProvider      string
	AnthropicAPIKey    string
	AnthropicModel     string
	OpenAIAPIKey       string
	OpenAIModel        string
	OllamaHost         string
	OllamaModel        string
	Port               string
	DBPath             string
	UploadDir          string
	ProcessedDir       string
	MaxUploadSize      int64
	ChunkSize          int
	ChunkOverlap       int
	DefaultUserID      string
	ProcessConcurrency int
	LogLevel           string
	CORSOrigins        []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ModelProvider:      getEnv("MODEL_PROVIDER", "anthropic"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:        getEnv("OLLAMA_MODEL", "llama3.1"),
		Port:               getEnv("PORT", "8080"),
		DBPath:             getEnv("DB_PATH", "./storage/tutor.db"),
		UploadDir:          getEnv("UPLOAD_DIR", "./storage/uploads"),
		ProcessedDir:       getEnv("PROCESSED_DIR", "./storage/processed"),
		MaxUploadSize:      getEnvInt64("MAX_UPLOAD_SIZE", 52428800), // 50MB default
		ChunkSize:          getEnvInt("CHUNK_SIZE", services.DefaultChunkSize),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", services.DefaultChunkOverlap),
		DefaultUserID:      getEnv("DEFAULT_USER_ID", "default_user"),
		ProcessConcurrency: getEnvInt("PROCESS_CONCURRENCY", 2),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
	}

	if _, err := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("invalid chunk settings: %w", err)
	}
	if cfg.ProcessConcurrency < 1 {
		cfg.ProcessConcurrency = 1
	}

	return cfg, nil
}

// APIKey returns the key for the configured model provider
func (c *Config) APIKey() string {
	switch strings.ToLower(c.ModelProvider) {
	case "openai":
		return c.OpenAIAPIKey
	case "ollama":
		return ""
	default:
		return c.AnthropicAPIKey
	}
}

// Model returns the model name for the configured model provider
func (c *Config) Model() string {
	switch strings.ToLower(c.ModelProvider) {
	case "openai":
		return c.OpenAIModel
	case "ollama":
		return c.OllamaModel
	default:
		return c.AnthropicModel
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvList(key string, defaultValue []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
