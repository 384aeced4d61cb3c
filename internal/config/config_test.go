package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesOriginalDefaults(t *testing.T) {
	d := Default()
	assert.Equal(t, DefaultSocketPath, d.Daemon.SocketPath)
	assert.Equal(t, "always", d.Models["embedder"].KeepLoaded)
	assert.Equal(t, 0, d.Models["embedder"].IdleTimeoutSeconds)
	assert.Equal(t, "on_demand", d.Models["reranker"].KeepLoaded)
	assert.Equal(t, 300, d.Models["reranker"].IdleTimeoutSeconds)
	assert.Equal(t, 4000, d.Memory.MaxRAMMB)
	assert.Equal(t, "lru", d.Memory.EvictionPolicy)
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envDBPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSocketPath, cfg.Daemon.SocketPath)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
daemon:
  socket_path: /tmp/custom.sock
memory:
  max_ram_mb: 8000
  eviction_policy: fifo
models:
  reranker:
    name: custom-reranker
    keep_loaded: disabled
    idle_timeout_seconds: 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", cfg.Daemon.SocketPath)
	assert.Equal(t, 8000, cfg.Memory.MaxRAMMB)
	assert.Equal(t, "fifo", cfg.Memory.EvictionPolicy)
	assert.Equal(t, "disabled", cfg.Models["reranker"].KeepLoaded)
	assert.Equal(t, 60, cfg.Models["reranker"].IdleTimeoutSeconds)
	// embedder wasn't touched by the file, defaults survive the merge.
	assert.Equal(t, "always", cfg.Models["embedder"].KeepLoaded)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  socket_path: /tmp/from-file.sock\n"), 0o644))

	t.Setenv("FASTSEARCH_DAEMON_SOCKET_PATH", "/tmp/from-env.sock")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.sock", cfg.Daemon.SocketPath)
}

func TestLoad_DBPathFromEnv(t *testing.T) {
	t.Setenv(envDBPath, "/data/fastsearch.db")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/fastsearch.db", cfg.DBPath)
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	c := Default()
	c.Daemon.LogLevel = "TRACE"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsBadEvictionPolicy(t *testing.T) {
	c := Default()
	c.Memory.EvictionPolicy = "random"
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsNonPositiveMaxRAM(t *testing.T) {
	c := Default()
	c.Memory.MaxRAMMB = 0
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsBadKeepLoaded(t *testing.T) {
	c := Default()
	c.Models["embedder"] = ModelConfig{KeepLoaded: "sometimes"}
	assert.Error(t, c.Validate())
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnv_LoadsVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FASTSEARCH_TEST_VAR=hello\n"), 0o644))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("FASTSEARCH_TEST_VAR"))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  max_ram_mb: 1000\n"), 0o644))

	changed := make(chan *Config, 1)
	w, err := Watch(path, func(c *Config) { changed <- c }, func(error) {})
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	require.NoError(t, os.WriteFile(path, []byte("memory:\n  max_ram_mb: 2000\n"), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, 2000, c.Memory.MaxRAMMB)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
