package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "default", cfg.Storage.StateID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.Chat.OpenAIModel)
	assert.False(t, cfg.Chat.HasPrimary())
	assert.False(t, cfg.Chat.HasFallback())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("STORAGE_DATA_DIR", t.TempDir())
	t.Setenv("STATE_ID", "branch-7")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "branch-7", cfg.Storage.StateID)
	assert.True(t, cfg.Chat.HasPrimary())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestValidateConfigPostgresNeedsDatabase(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Driver: DriverPostgres, StateID: "default"},
		Server:  ServerConfig{Port: 8080},
	}

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database host")
}

func TestGeminiModelList(t *testing.T) {
	cfg := ChatConfig{GeminiModels: "gemini-1.5-flash, gemini-1.5-pro ,,"}
	assert.Equal(t, []string{"gemini-1.5-flash", "gemini-1.5-pro"}, cfg.GeminiModelList())

	empty := ChatConfig{}
	assert.Empty(t, empty.GeminiModelList())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "pw", Name: "libtrack", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=libtrack sslmode=disable",
		cfg.GetDSN())
}
