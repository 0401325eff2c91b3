// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/parley-project/parley/config"
	"github.com/parley-project/parley/lib/clock"
	"github.com/parley-project/parley/lib/netutil"
	"github.com/parley-project/parley/wire"
)

// Operator-facing message texts. These travel on the wire; changing
// them changes what connected clients display.
const (
	welcomeText    = "Connected to Parley server"
	shutdownText   = "Server is shutting down"
	disconnectText = "You have been disconnected by the server."
)

// Server is the Parley daemon: it accepts TCP connections, runs each
// on a session goroutine pair drawn from a bounded pool, and owns the
// registry shared across them.
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	clock       clock.Clock
	registry    *Registry
	broadcaster *Broadcaster
	executor    *Executor

	mu       sync.Mutex
	running  bool
	listener net.Listener
	shutdown context.CancelFunc
	active   map[string]*Session

	sessions sync.WaitGroup
}

// Option adjusts Server construction.
type Option func(*Server)

// WithClock substitutes the server's time source. Tests use a fake
// clock to step through the shutdown grace period deterministically.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// New creates a server from validated configuration. The server does
// not listen until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Server {
	registry := NewRegistry()
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		clock:       clock.Real(),
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger),
		active:      make(map[string]*Session),
	}
	if cfg.Exec.Enabled {
		s.executor = NewExecutor(logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the server's client registry, for the admin
// control surface.
func (s *Server) Registry() *Registry { return s.registry }

// Broadcaster exposes the server's broadcaster, for the admin control
// surface.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Start binds the listener and begins accepting connections. Calling
// Start on a server that is already running logs and does nothing.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Info("start ignored, server already running")
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Listen, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = listener
	s.shutdown = cancel
	s.running = true

	s.logger.Info("server started",
		"listen", listener.Addr(),
		"max_sessions", s.cfg.Limits.MaxSessions,
		"exec_enabled", s.cfg.Exec.Enabled,
	)

	go s.acceptLoop(ctx, listener)
	return nil
}

// Addr returns the listener's address, or nil when not running. Useful
// when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// acceptLoop accepts connections until the listener closes. Each
// connection first claims a pool slot; connections beyond the limit
// queue in the kernel backlog rather than being refused.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	slots := make(chan struct{}, s.cfg.Limits.MaxSessions)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return
		}

		session := s.newSession(conn)
		s.track(session)
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			defer func() { <-slots }()
			defer s.untrack(session)
			session.run(ctx)
		}()
	}
}

// newSession wires a Session for one accepted connection.
func (s *Server) newSession(conn net.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		conn:        conn,
		reader:      wire.NewReader(conn),
		writer:      wire.NewWriter(conn),
		logger:      s.logger.With("session", id),
		registry:    s.registry,
		broadcaster: s.broadcaster,
		executor:    s.executor,
		fileRoot:    s.cfg.Transfer.Root,
		outbound:    make(chan wire.Envelope, s.cfg.Limits.OutboundQueue),
		pause:       make(chan chan struct{}),
		kick:        make(chan wire.Envelope, 1),
		closed:      make(chan struct{}),
	}
}

// Stop shuts the server down: announces to every client, stops
// accepting, waits the configured grace for clients to drain, then
// force-closes whatever remains. Calling Stop on a stopped server logs
// and does nothing.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Info("stop ignored, server not running")
		return
	}
	listener := s.listener
	cancel := s.shutdown
	s.running = false
	s.listener = nil
	s.shutdown = nil
	s.mu.Unlock()

	s.logger.Info("server stopping", "grace", s.cfg.Grace())
	s.broadcaster.Broadcast(wire.NewShutdown(shutdownText))

	cancel()
	listener.Close()

	drained := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-s.clock.After(s.cfg.Grace()):
		remaining := s.trackedSessions()
		s.logger.Warn("grace expired, force-closing sessions", "count", len(remaining))
		for _, session := range remaining {
			session.Close()
		}
		<-drained
	}

	s.logger.Info("server stopped")
}

func (s *Server) track(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[session.id] = session
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, session.id)
}

func (s *Server) trackedSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*Session, 0, len(s.active))
	for _, session := range s.active {
		sessions = append(sessions, session)
	}
	return sessions
}
