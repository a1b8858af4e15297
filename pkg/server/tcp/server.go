// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YushiOMOTE/tpx/pkg/handler"
	"github.com/YushiOMOTE/tpx/pkg/sockopt"
	"github.com/YushiOMOTE/tpx/pkg/stream"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrShutdownTimeout is returned when sessions do not finish within the
	// configured timeout after the server was stopped.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

const unknownAddr = "<unknown>"

// Config holds the TCP forwarder configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TargetAddress is the destination every inbound connection is forwarded to (host:port)
	TargetAddress string

	// SocketOptions are applied to both the inbound and the outbound connection
	SocketOptions sockopt.Options

	// MaxSessions bounds the number of concurrent sessions. Zero means unbounded.
	MaxSessions int

	// DialTimeout bounds the outbound connect. Zero leaves it to the OS.
	DialTimeout time.Duration

	// BufferSize is the per-direction copy buffer size
	BufferSize int

	// ShutdownTimeout is the maximum time to wait for force-closed sessions
	// to finish after the server is stopped.
	ShutdownTimeout time.Duration

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts connections on Address and forwards each one to TargetAddress.
type Server struct {
	config  Config
	handler handler.Handler
	copier  *stream.Copier
	sem     *semaphore.Weighted
	dialer  func(ctx context.Context, network, address string) (net.Conn, error)

	wg     sync.WaitGroup
	active atomic.Int64

	mu        sync.Mutex
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a new TCP forwarder with the given configuration and handler.
func New(cfg Config, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = stream.DefaultBufferSize
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:  cfg,
		handler: h,
		copier:  stream.NewCopier(cfg.BufferSize),
		ready:   make(chan struct{}),
	}
	if cfg.MaxSessions > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}

	// Keepalive is decided by sockopt.Apply only.
	d := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: -1}
	s.dialer = d.DialContext

	return s
}

// Listen binds Address and serves until the context is cancelled.
// A bind failure is returned immediately and is not retried.
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{KeepAlive: -1}
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until the context is cancelled.
// Each connection is forwarded in its own goroutine; a slow session never
// delays the next accept. On cancellation the listener is closed, live
// sessions are closed without draining, and Serve returns nil.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.config.Logger.Info("TCP forwarder started",
		slog.String("address", listener.Addr().String()),
		slog.String("target", s.config.TargetAddress),
		slog.Int("max_sessions", s.config.MaxSessions))

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
		}
	})
	defer stop()

	// Sessions get their own context so they can be force-closed after
	// the accept loop has stopped.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptErr := s.acceptLoop(ctx, connCtx, listener)

	s.config.Logger.Info("TCP forwarder stopping, closing active sessions",
		slog.Int64("active", s.active.Load()))
	connCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, sessions still running",
			slog.Int64("active", s.active.Load()))
		if acceptErr == nil {
			acceptErr = ErrShutdownTimeout
		}
	}

	return acceptErr
}

func (s *Server) acceptLoop(ctx, connCtx context.Context, listener net.Listener) error {
	var tempDelay time.Duration
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}

			// Back off on errors such as EMFILE instead of spinning.
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.config.Logger.Error("failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", tempDelay))
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.serveConn(connCtx, conn)
		}()
	}
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or nil before Ready is closed.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Active returns the number of sessions currently running.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// MaxSessions returns the configured session ceiling, zero when unbounded.
func (s *Server) MaxSessions() int {
	return s.config.MaxSessions
}

// peerAddr returns the remote address of conn, or "<unknown>" when the
// address cannot be retrieved.
func peerAddr(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return unknownAddr
	}
	if str := addr.String(); str != "" && str != "<nil>" {
		return str
	}
	return unknownAddr
}
