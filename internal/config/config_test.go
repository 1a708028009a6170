package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsJSONConfigAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
    "bot_token": "file-token",
    "owner_ids": [421698654189912064],
    "slash_guilds": [994710566612500550],
    "debug": true,
    "log_level": "DEBUG",
    "polls": {"sweep_interval_seconds": 0}
}`), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token())
	assert.Equal(t, []string{"421698654189912064"}, cfg.OwnerIDs)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, 60, cfg.Polls.SweepIntervalSeconds)
	assert.True(t, cfg.IsOwner("421698654189912064"))
}

func TestLoadRequiresToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("DEV_BOT_TOKEN", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestDebugWithoutGuildsIsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debug = true
	normalize(&cfg)
	if cfg.Debug {
		t.Fatalf("expected debug to be disabled without slash guilds")
	}
}

func TestConvertEnv(t *testing.T) {
	doc := ConvertEnv(map[string]string{
		"BOT_TOKEN":     "abc.def",
		"OWNER_IDS":     "1:2:3",
		"SLASH_GUILDS":  "42",
		"DEBUG":         "True",
		"ERROR_CHANNEL": "none",
	})

	assert.Equal(t, "abc.def", doc["bot_token"])
	assert.Equal(t, []int64{1, 2, 3}, doc["owner_ids"])
	assert.Equal(t, []any{int64(42)}, doc["slash_guilds"])
	assert.Equal(t, true, doc["debug"])
	assert.Nil(t, doc["error_channel"])
}

func TestConvertEnvFileRoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("BOT_TOKEN=converted\nOWNER_IDS=7:8\n"), 0o600))

	doc, err := ConvertEnvFile(envPath)
	require.NoError(t, err)

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, WriteJSON(jsonPath, doc))

	t.Setenv("CONFIG_PATH", jsonPath)
	t.Setenv("BOT_TOKEN", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "converted", cfg.BotToken)
	assert.Equal(t, []string{"7", "8"}, cfg.OwnerIDs)
}
