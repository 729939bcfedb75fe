package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"FEISHU_APP_ID":       "cli_a",
		"FEISHU_APP_SECRET":   "secret",
		"LLM_PRIMARY_MODEL":   "doubao-pro",
		"LLM_PRIMARY_API_KEY": "k1",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	addr, err := cfg.Server.Addr()
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)
	assert.Equal(t, ProviderArk, cfg.Primary.Provider)
	assert.Equal(t, ProviderDeepSeek, cfg.Fallback.Provider)
	assert.False(t, cfg.Fallback.Enabled())
	assert.Equal(t, "chat_history", cfg.Memory.Key)
	assert.Equal(t, 80, cfg.Memory.SummaryThreshold)
	assert.Equal(t, 1000, cfg.Memory.TokenLimit)
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	assert.Equal(t, 2*time.Minute, cfg.Agent.RunTimeout)
	assert.Equal(t, FeishuModeWebhook, cfg.Feishu.Mode)
	assert.Equal(t, "primary", cfg.Feishu.CalendarID)
	assert.Equal(t, "xiaolang", cfg.PersonaID)
	assert.Empty(t, cfg.Pipeline.Apology)
}

func TestLoadOverrides(t *testing.T) {
	environ := baseEnv()
	environ["PORT"] = "127.0.0.1:9000"
	environ["LLM_FALLBACK_MODEL"] = "deepseek-chat"
	environ["LLM_FALLBACK_API_KEY"] = "k2"
	environ["LLM_PRIMARY_TIMEOUT"] = "5s"
	environ["MEMORY_KEY"] = "history"
	environ["FEISHU_MODE"] = "websocket"

	cfg, err := LoadFrom(environ)
	require.NoError(t, err)

	addr, err := cfg.Server.Addr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", addr)
	assert.True(t, cfg.Fallback.Enabled())
	assert.Equal(t, 5*time.Second, cfg.Primary.Timeout)
	assert.Equal(t, "history", cfg.Memory.Key)
	assert.Equal(t, FeishuModeWebsocket, cfg.Feishu.Mode)
}

func TestLoadFailsFastOnMissingCredentials(t *testing.T) {
	environ := baseEnv()
	delete(environ, "FEISHU_APP_SECRET")
	_, err := LoadFrom(environ)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEISHU_APP_SECRET")

	environ = baseEnv()
	delete(environ, "LLM_PRIMARY_API_KEY")
	_, err = LoadFrom(environ)
	assert.True(t, errors.Is(err, ErrPrimaryModelMissing))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "80 80",
		"FEISHU_MODE":          "polling",
		"LLM_PRIMARY_PROVIDER": "gemini",
		"AGENT_MAX_ITERATIONS": "0",
	}
	for key, value := range cases {
		environ := baseEnv()
		environ[key] = value
		_, err := LoadFrom(environ)
		assert.Error(t, err, key)
	}
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := ModelConfig{Provider: ProviderDeepSeek}.NewChatModel(t.Context())
	assert.Error(t, err)
}
