package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "gem-key", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "base", cfg.Engine.DefaultStrategy)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
storage:
  driver: redis
  redis:
    host: cache
ai:
  provider: openai
  temperature: 0.5
  openai:
    model: glm-4
engine:
  max_debug_entries: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, StorageRedis, cfg.Storage.Driver)
	assert.Equal(t, "cache", cfg.Storage.Redis.Host)
	assert.Equal(t, 6379, cfg.Storage.Redis.Port)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.InDelta(t, 0.5, cfg.AI.Temperature, 0.0001)
	assert.Equal(t, "glm-4", cfg.AI.OpenAI.Model)
	assert.Equal(t, 200, cfg.Engine.MaxDebugEntries)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("STORYOMATIC_SERVER_PORT", "7070")
	t.Setenv("STORYOMATIC_AI_OPENAI_API_KEY", "env-key")
	t.Setenv("STORYOMATIC_ENGINE_DEFAULT_STRATEGY", "v2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "v2", cfg.Engine.DefaultStrategy)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	path := writeConfig(t, "ai:\n  provider: llama\nstorage:\n  driver: floppy\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown ai.provider "llama"`)
	assert.Contains(t, err.Error(), `unknown storage.driver "floppy"`)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", s.Addr())
}
