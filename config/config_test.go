package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GENERATION_DEADLINE_SECONDS", "")
	cfg := Load()

	assert.Equal(t, "music-tracks", cfg.MinioBucket)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 0.8, cfg.OpenAITemperature)
	assert.Equal(t, 5*time.Second, cfg.MurekaPollInterval)
	assert.Equal(t, 96, cfg.MurekaMaxPollAttempts)
	// 非法数值回退到默认值
	assert.Equal(t, 300*time.Second, cfg.GenerationDeadline)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GENERATION_MAX_ATTEMPTS", "2")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")
	t.Setenv("REDIS_PORT", "6380")

	cfg := Load()
	assert.Equal(t, 2, cfg.GenerationMaxAttempts)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 0.3, cfg.OpenAITemperature)
	assert.Equal(t, "127.0.0.1:6380", cfg.RedisAddr())
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBHost: "db", DBName: "fm", DBUser: "root", RedisHost: "r", RedisPort: "6379"}
	require.NoError(t, cfg.Validate(RequireDatabase, RequireRedis))

	err := cfg.Validate(RequirePromptService, RequireRenderService)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "MUREKA_API_KEY")
}
