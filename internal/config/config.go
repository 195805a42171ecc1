// Package config provides configuration management for Keepsake.
// It loads settings from environment variables with the KEEPSAKE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/storage"
)

// Config holds all configuration settings for the Keepsake application.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	Dedup   DedupConfig
}

// ServerConfig contains dashboard HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7117)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string // Path to data directory (default: ./data)
	PostgresDSN string // Connection string when Engine is postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider           string // LLM provider: ollama, openai, anthropic (default: ollama)
	OllamaURL          string // Ollama API URL (default: http://localhost:11434)
	OllamaModel        string // Ollama model for generation (default: qwen2.5:7b)
	EmbeddingModel     string // Embedding model name (default: nomic-embed-text)
	EmbeddingDimension int    // Vector dimension agreed at store creation (default: 768)
	OpenAIAPIKey       string
	OpenAIModel        string // default: gpt-4o-mini
	AnthropicAPIKey    string
	AnthropicModel     string // default: claude-haiku-4-5-20251001
}

// DedupConfig carries the per-kind dedup thresholds.
type DedupConfig struct {
	FactThreshold     float64 // cosine-distance cutoff for user facts (default: 0.10)
	EpisodicThreshold float64 // cutoff for every other kind (default: 0.05)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the KEEPSAKE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("KEEPSAKE_PORT", 7117),
			Host: getEnv("KEEPSAKE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("KEEPSAKE_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("KEEPSAKE_DATA_PATH", "./data"),
			PostgresDSN: getEnv("KEEPSAKE_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:           getEnv("KEEPSAKE_LLM_PROVIDER", "ollama"),
			OllamaURL:          getEnv("KEEPSAKE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:        getEnv("KEEPSAKE_OLLAMA_MODEL", "qwen2.5:7b"),
			EmbeddingModel:     getEnv("KEEPSAKE_EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimension: getEnvInt("KEEPSAKE_EMBEDDING_DIMENSION", 768),
			OpenAIAPIKey:       getEnv("KEEPSAKE_OPENAI_API_KEY", ""),
			OpenAIModel:        getEnv("KEEPSAKE_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:    getEnv("KEEPSAKE_ANTHROPIC_API_KEY", ""),
			AnthropicModel:     getEnv("KEEPSAKE_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		},
		Dedup: DedupConfig{
			FactThreshold:     getEnvFloat("KEEPSAKE_DEDUP_FACT_THRESHOLD", 0.10),
			EpisodicThreshold: getEnvFloat("KEEPSAKE_DEDUP_ENTRY_THRESHOLD", 0.05),
		},
	}

	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "postgres" {
		return nil, fmt.Errorf("config: unsupported storage engine %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == "postgres" && cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("config: KEEPSAKE_POSTGRES_DSN is required for the postgres engine")
	}
	if cfg.LLM.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("config: embedding dimension must be positive")
	}
	return cfg, nil
}

// DedupThresholds converts the dedup section to the storage package's type.
func (c *Config) DedupThresholds() storage.DedupThresholds {
	return storage.DedupThresholds{
		UserFact: c.Dedup.FactThreshold,
		Episodic: c.Dedup.EpisodicThreshold,
	}
}

// ProviderConfig converts the LLM section to the llm factory's input.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	p := llm.ProviderConfig{
		Provider:       c.LLM.Provider,
		EmbeddingModel: c.LLM.EmbeddingModel,
	}
	switch c.LLM.Provider {
	case "openai":
		p.APIKey = c.LLM.OpenAIAPIKey
		p.Model = c.LLM.OpenAIModel
	case "anthropic":
		p.APIKey = c.LLM.AnthropicAPIKey
		p.Model = c.LLM.AnthropicModel
	default:
		p.BaseURL = c.LLM.OllamaURL
		p.Model = c.LLM.OllamaModel
	}
	return p
}

// EmbeddingProviderConfig is the provider selection for embeddings only.
// Anthropic has no embeddings API, so it always falls back to Ollama.
func (c *Config) EmbeddingProviderConfig() llm.ProviderConfig {
	if c.LLM.Provider == "anthropic" {
		return llm.ProviderConfig{
			Provider:       "ollama",
			BaseURL:        c.LLM.OllamaURL,
			EmbeddingModel: c.LLM.EmbeddingModel,
		}
	}
	return c.ProviderConfig()
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value, also on parse failure.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value, also on parse failure.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
