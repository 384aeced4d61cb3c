package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearch/internal/manager"
	"github.com/fastsearch/fastsearch/internal/rpc"
)

func TestReadPIDFile_MissingFile(t *testing.T) {
	_, ok := readPIDFile(filepath.Join(t.TempDir(), "missing.pid"))
	assert.False(t, ok)
}

func TestReadPIDFile_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastsearch.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	pid, ok := readPIDFile(path)
	require.True(t, ok)
	assert.Equal(t, 4242, pid)
}

func TestReadPIDFile_EmptyPathIsNotRunning(t *testing.T) {
	_, ok := readPIDFile("")
	assert.False(t, ok)
}

func TestStatusCmd_ReportsNotRunningWithoutPIDFile(t *testing.T) {
	dir := t.TempDir()
	socketFlag = filepath.Join(dir, "fastsearch.sock")
	t.Setenv("FASTSEARCH_DAEMON_PID_PATH", filepath.Join(dir, "fastsearch.pid"))

	stdout := captureStdout(t, func() {
		_ = statusCmd.RunE(statusCmd, nil)
	})
	assert.Contains(t, stdout, "not running")
}

func TestStatusCmd_ReportsRunningAgainstLiveDaemon(t *testing.T) {
	dir := t.TempDir()
	socketFlag = filepath.Join(dir, "fastsearch.sock")
	pidPath := filepath.Join(dir, "fastsearch.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644))
	t.Setenv("FASTSEARCH_DAEMON_PID_PATH", pidPath)

	mgr, err := manager.New(context.Background(), nil, 0, manager.EvictionLRU)
	require.NoError(t, err)
	defer mgr.Close()

	cfg, err := loadConfig()
	require.NoError(t, err)

	srv, err := rpc.NewServer(cfg.Daemon.SocketPath, 4, nil)
	require.NoError(t, err)
	defer srv.Close()
	srv.RegisterHandler("status", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"uptime_seconds": 1.0, "request_count": int64(0), "socket_path": cfg.Daemon.SocketPath}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	statusCmd.SetContext(context.Background())
	stdout := captureStdout(t, func() {
		_ = statusCmd.RunE(statusCmd, nil)
	})
	assert.Contains(t, stdout, "fastsearchd running")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}
