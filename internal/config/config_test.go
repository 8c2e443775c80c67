package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PW_CHUNK_SIZE", "")
	t.Setenv("PW_SESSION_TTL", "")
	cfg := Load()
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 10, cfg.MaxHistoryPairs)
	assert.Equal(t, 100, cfg.EmbedBatchSize)
	assert.Equal(t, "paper_chunks", cfg.VectorCollection)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PW_CHUNK_SIZE", "512")
	t.Setenv("PW_TOP_K", "not-a-number")
	t.Setenv("PW_SESSION_TTL", "90m")
	t.Setenv("PW_DEBUG", "true")
	t.Setenv("PW_QWEN_API_KEY", "sk-qwen")
	cfg := Load()
	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "sk-qwen", cfg.Providers["qwen"].APIKey)
}

func TestProviderKeyAlias(t *testing.T) {
	t.Setenv("PW_OPENAI_API_KEY", "sk-default")
	t.Setenv("PW_OPENAI_KEY_BACKUP", "sk-backup")
	cfg := Load()
	assert.Equal(t, "sk-backup", cfg.ProviderKey("openai", "backup"))
	assert.Equal(t, "sk-default", cfg.ProviderKey("openai", "missing"))
	assert.Equal(t, "sk-default", cfg.ProviderKey("openai", ""))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := Config{RetryAttempts: 5, RetryInitial: 2 * time.Second}.RetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.InitialInterval)
	assert.Equal(t, 20*time.Second, p.MaxInterval)
}
