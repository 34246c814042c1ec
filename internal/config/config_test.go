package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, 1024, cfg.Cache.L1MaxEntries)
	assert.Equal(t, 300, cfg.Sync.TimeoutSeconds)
	assert.Empty(t, cfg.RedisAddr)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default(dir)
	cfg.Verbose = true
	cfg.RedisAddr = "127.0.0.1:6379"
	cfg.Providers["github"] = ProviderConfig{
		ClientID:    "id-123",
		RedirectURI: "http://127.0.0.1:8910/callback",
	}
	require.NoError(t, cfg.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Verbose)
	assert.Equal(t, "127.0.0.1:6379", loaded.RedisAddr)
	assert.Equal(t, "id-123", loaded.Provider("github").ClientID)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "verbose = true\n\n[chunking]\nchunk_size = 512\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENINDEX_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("OPENINDEX_GITHUB_CLIENT_ID", "env-id")
	t.Setenv("OPENINDEX_GITHUB_CLIENT_SECRET", "env-secret")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, "env-id", cfg.Provider("github").ClientID)
	assert.Equal(t, "env-secret", cfg.Provider("github").ClientSecret)
}

func TestEnvSecretsNeverWrittenBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Default(dir).Save(dir))
	t.Setenv("OPENINDEX_NOTION_CLIENT_SECRET", "env-only")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Provider("notion").ClientSecret)

	// The file on disk still has no secret in it.
	raw, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "env-only")
}

func TestInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
