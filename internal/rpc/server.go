package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"
)

// Handler answers one RPC method call. params is the raw params object
// from the request, or nil if the call carried none.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server accepts connections on a Unix domain socket and dispatches
// length-framed JSON-RPC 2.0 requests to registered handlers.
type Server struct {
	socketPath string
	ln         net.Listener
	logger     *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	pool *ants.Pool
	sem  *semaphore.Weighted

	startedAt    time.Time
	requestCount atomic.Int64

	closeOnce    sync.Once
	closeErr     error
	shutdownHook func()
}

// OnClose registers fn to run once, the first time Close is called. It
// must be set before Serve starts accepting connections.
func (s *Server) OnClose(fn func()) { s.shutdownHook = fn }

// NewServer binds socketPath, refusing to bind if a live server already
// holds the address and unlinking a stale socket file otherwise. The
// socket is created with 0600 permissions. maxConcurrent bounds both the
// connection-dispatch worker pool and simultaneous in-flight requests.
func NewServer(socketPath string, maxConcurrent int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	if err := removeStaleSocket(socketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen on %q: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("rpc: chmod %q: %w", socketPath, err)
	}

	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("rpc: create dispatch pool: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		ln:         ln,
		logger:     logger,
		handlers:   make(map[string]Handler),
		pool:       pool,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		startedAt:  time.Now(),
	}, nil
}

// removeStaleSocket deletes socketPath if no live listener answers on it,
// and refuses if one does.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rpc: stat %q: %w", path, err)
	}
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("rpc: a live server already holds %q", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("rpc: remove stale socket %q: %w", path, err)
	}
	return nil
}

// RegisterHandler binds method to h, overwriting any previous binding.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[method] = h
}

// SocketPath returns the socket this server is listening on.
func (s *Server) SocketPath() string { return s.socketPath }

// Uptime returns how long the server has been accepting connections.
func (s *Server) Uptime() time.Duration { return time.Since(s.startedAt) }

// RequestCount returns the number of successfully parsed requests handled
// so far, across all connections.
func (s *Server) RequestCount() int64 { return s.requestCount.Load() }

// Serve accepts connections until ctx is canceled or Close is called.
// Each connection is dispatched onto the worker pool; Serve itself
// returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if submitErr := s.pool.Submit(func() { s.handleConn(ctx, conn) }); submitErr != nil {
			s.logger.Warn("rpc: dispatch pool rejected connection", "error", submitErr)
			conn.Close()
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()

	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, ErrOversizeMessage):
				s.logger.Warn("rpc: oversize message, closing connection", "conn_id", connID, "error", err)
			default:
				s.logger.Debug("rpc: connection read failed", "conn_id", connID, "error", err)
			}
			return
		}

		resp, shutdown := s.dispatch(ctx, connID, payload)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Warn("rpc: marshal response failed", "conn_id", connID, "error", err)
			return
		}
		if err := WriteFrame(conn, data); err != nil {
			s.logger.Debug("rpc: connection write failed", "conn_id", connID, "error", err)
			return
		}
		if shutdown {
			go s.Close()
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, connID string, payload []byte) (*Response, bool) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return newErrorResponse(nil, CodeParseError, "invalid JSON: "+err.Error(), nil), false
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return newErrorResponse(req.ID, CodeInvalidRequest, "request must carry jsonrpc=\"2.0\" and a method", nil), false
	}
	s.requestCount.Add(1)

	s.handlersMu.RLock()
	h, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.logger.Debug("rpc: method not found", "conn_id", connID, "method", req.Method)
		return newErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil), false
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return newErrorResponse(req.ID, CodeServerError, "server shutting down", nil), false
	}
	defer s.sem.Release(1)

	s.logger.Debug("rpc: dispatching request", "conn_id", connID, "method", req.Method)
	result, err := h(ctx, req.Params)
	if err != nil {
		s.logger.Info("rpc: handler error", "conn_id", connID, "method", req.Method, "error", err)
		var ipe *InvalidParamsError
		if errors.As(err, &ipe) {
			return newErrorResponse(req.ID, CodeInvalidParams, ipe.Error(), nil), false
		}
		return errorResponse(req.ID, err), false
	}
	return newResponse(req.ID, result), req.Method == "shutdown"
}

// Close stops accepting connections, releases the dispatch pool, and
// removes the socket file. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
		s.pool.Release()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("rpc: remove socket on close", "error", err)
		}
		if s.shutdownHook != nil {
			s.shutdownHook()
		}
	})
	return s.closeErr
}
