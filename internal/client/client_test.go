package client

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearch/internal/fserr"
	"github.com/fastsearch/fastsearch/internal/rpc"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "fastsearch.sock")
	srv, err := rpc.NewServer(socketPath, 4, nil)
	require.NoError(t, err)
	srv.RegisterHandler("ping", func(_ context.Context, _ json.RawMessage) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	srv.RegisterHandler("search", func(_ context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Query string `json:"query"`
		}
		json.Unmarshal(params, &p)
		return map[string]any{
			"results": []map[string]any{
				{"id": 1, "source": "doc.md", "chunk_index": 0, "rank": 1, "content": "hello " + p.Query},
			},
			"mode":           "hybrid",
			"search_time_ms": 1.5,
		}, nil
	})
	srv.RegisterHandler("boom", func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("synthetic failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { srv.Close() })
	go srv.Serve(ctx)
	return socketPath
}

func TestClient_PingSucceeds(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(socketPath, time.Second)
	defer c.Close()

	ok, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_Search(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(socketPath, time.Second)
	defer c.Close()

	resp, err := c.Search(context.Background(), "world", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "hello world", resp.Results[0].Content)
	assert.Equal(t, "hybrid", resp.Mode)
}

func TestClient_ServerErrorBecomesRPCError(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(socketPath, time.Second)
	defer c.Close()

	_, err := c.call(context.Background(), "boom", nil)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeServerError, rpcErr.Code)
}

func TestClient_DeterministicErrorDoesNotReconnect(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "fastsearch.sock")
	srv, err := rpc.NewServer(socketPath, 4, nil)
	require.NoError(t, err)
	var calls int
	srv.RegisterHandler("empty_query", func(_ context.Context, _ json.RawMessage) (any, error) {
		calls++
		return nil, fserr.New(fserr.EmptyQuery, "query must not be empty")
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { srv.Close() })
	go srv.Serve(ctx)

	c := New(socketPath, time.Second)
	defer c.Close()

	_, err = c.call(context.Background(), "empty_query", nil)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, string(fserr.EmptyQuery), rpcErr.Data["kind"])
	assert.Equal(t, 1, calls, "a deterministic business error must not trigger a reconnect-and-retry")
}

func TestClient_ModelLoadFailedRetriesOnce(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "fastsearch.sock")
	srv, err := rpc.NewServer(socketPath, 4, nil)
	require.NoError(t, err)
	var calls int
	srv.RegisterHandler("load_model", func(_ context.Context, _ json.RawMessage) (any, error) {
		calls++
		return nil, fserr.New(fserr.ModelLoadFailed, "model failed to load")
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { srv.Close() })
	go srv.Serve(ctx)

	c := New(socketPath, time.Second)
	defer c.Close()

	_, err = c.call(context.Background(), "load_model", nil)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, string(fserr.ModelLoadFailed), rpcErr.Data["kind"])
	assert.Equal(t, 2, calls, "ModelLoadFailed should be retried exactly once after reconnect")
}

func TestClient_MissingSocketIsDaemonNotRunning(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"), time.Second)
	_, err := c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDaemonNotRunning))
}

func TestIsDaemonRunning(t *testing.T) {
	assert.False(t, IsDaemonRunning(filepath.Join(t.TempDir(), "missing.sock")))

	socketPath := startTestServer(t)
	assert.True(t, IsDaemonRunning(socketPath))
}

func TestClient_ReusesConnectionAcrossCalls(t *testing.T) {
	socketPath := startTestServer(t)
	c := New(socketPath, time.Second)
	defer c.Close()

	_, err := c.Ping(context.Background())
	require.NoError(t, err)
	firstConn := c.conn

	_, err = c.Ping(context.Background())
	require.NoError(t, err)
	assert.Same(t, firstConn, c.conn)
}
