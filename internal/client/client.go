package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastsearch/fastsearch/internal/fserr"
	"github.com/fastsearch/fastsearch/internal/rpc"
)

// ErrDaemonNotRunning means the socket file is absent or nothing answers
// on it. Callers (and the package-level convenience functions) use this
// to decide whether to fall back to direct mode.
var ErrDaemonNotRunning = errors.New("client: daemon not running")

// RPCError is a JSON-RPC error object returned by the daemon.
type RPCError struct {
	Code    int
	Message string
	Data    map[string]any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("client: rpc error %d: %s", e.Code, e.Message)
}

// Client holds a persistent connection to the daemon's Unix socket. It is
// safe for concurrent use; calls are serialized over the one connection,
// matching the daemon's one-request-at-a-time-per-connection contract.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu     sync.Mutex
	conn   net.Conn
	nextID int64
}

// New creates a client bound to socketPath. No connection is made until
// the first call. A zero timeout defaults to 30s.
func New(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Close disconnects, if connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	if _, err := os.Stat(c.socketPath); err != nil {
		return fmt.Errorf("%w: socket %s not found", ErrDaemonNotRunning, c.socketPath)
	}
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) disconnectLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call sends method/params and returns the raw result bytes. It retries
// once, after reconnecting, on a transient I/O failure or on a
// ModelLoadFailed response; deterministic business-logic errors (a
// rejected EmptyQuery, InvalidArgument, ModelDisabled, ...) are reported
// as-is, since retrying them would just reproduce the same failure.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.doCall(ctx, method, params)
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) && shouldRetry(err) {
		c.disconnectLocked()
		result, err = c.doCall(ctx, method, params)
	}
	return result, err
}

// shouldRetry reports whether err warrants the client's single
// reconnect-and-retry: a transient I/O failure (surfaced as a plain
// wrapped error, not an *RPCError, since doCall only returns an *RPCError
// for a well-formed daemon response) or a ModelLoadFailed response.
func shouldRetry(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return true
	}
	return rpcErr.Data["kind"] == string(fserr.ModelLoadFailed)
}

func (c *Client) doCall(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	req := rpc.Request{JSONRPC: "2.0", Method: method, ID: atomic.AddInt64(&c.nextID, 1)}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("client: encode params: %w", err)
		}
		req.Params = b
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := rpc.WriteFrame(c.conn, body); err != nil {
		c.disconnectLocked()
		return nil, fmt.Errorf("client: send request: %w", err)
	}

	raw, err := rpc.ReadFrame(c.conn)
	if err != nil {
		c.disconnectLocked()
		return nil, fmt.Errorf("client: receive response: %w", err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("client: invalid response: %w", err)
	}
	if resp.Error != nil {
		return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}
	return json.Marshal(resp.Result)
}

// IsDaemonRunning probes socketPath with a bounded ping, matching the
// original FastSearchClient.is_daemon_running static helper.
func IsDaemonRunning(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c := New(socketPath, 2*time.Second)
	defer c.Close()
	ok, err := c.Ping(context.Background())
	return err == nil && ok
}
