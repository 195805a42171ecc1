package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7117, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 768, cfg.LLM.EmbeddingDimension)
	assert.InDelta(t, 0.10, cfg.Dedup.FactThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.Dedup.EpisodicThreshold, 1e-9)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("KEEPSAKE_PORT", "9000")
	t.Setenv("KEEPSAKE_DEDUP_FACT_THRESHOLD", "0.2")
	t.Setenv("KEEPSAKE_LLM_PROVIDER", "openai")
	t.Setenv("KEEPSAKE_OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.InDelta(t, 0.2, cfg.Dedup.FactThreshold, 1e-9)

	p := cfg.ProviderConfig()
	assert.Equal(t, "openai", p.Provider)
	assert.Equal(t, "sk-test", p.APIKey)
}

func TestLoadConfigRejectsBadEngine(t *testing.T) {
	t.Setenv("KEEPSAKE_STORAGE_ENGINE", "mongodb")
	_, err := LoadConfig()
	assert.Error(t, err, "unsupported engine should fail")
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("KEEPSAKE_STORAGE_ENGINE", "postgres")
	_, err := LoadConfig()
	assert.Error(t, err, "postgres without DSN should fail")
}

func TestEmbeddingProviderFallsBackForAnthropic(t *testing.T) {
	t.Setenv("KEEPSAKE_LLM_PROVIDER", "anthropic")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	p := cfg.EmbeddingProviderConfig()
	assert.Equal(t, "ollama", p.Provider, "anthropic has no embedding endpoint")
}
