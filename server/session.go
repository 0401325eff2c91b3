// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/parley-project/parley/lib/netutil"
	"github.com/parley-project/parley/wire"
)

// sessionState tracks the connection lifecycle: accepted but
// anonymous, named and registered, or terminal.
type sessionState int

const (
	stateConnected sessionState = iota
	stateLoggedIn
	stateClosed
)

// Delivery errors returned by Session.Deliver.
var (
	// ErrSessionClosed reports delivery to a session that has already
	// torn down.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrQueueFull reports an outbound queue overflow. The session is
	// disconnected as a side effect: a peer that cannot keep up is
	// dropped rather than allowed to stall its senders.
	ErrQueueFull = errors.New("server: outbound queue full")
)

// errDisconnectRequested ends the read loop when the peer sends an
// explicit disconnect envelope.
var errDisconnectRequested = errors.New("server: client requested disconnect")

// Session is the server-side state for one client connection. It owns
// the socket exclusively: the read loop is the only reader, and every
// outbound byte goes through the writer goroutine (or through the read
// loop while it holds the transfer pause — see transfer.go). Other
// components deliver to the session only via Deliver.
type Session struct {
	id     string
	conn   net.Conn
	reader *wire.Reader
	writer *wire.Writer
	logger *slog.Logger

	registry    *Registry
	broadcaster *Broadcaster
	executor    *Executor // nil when command execution is disabled
	fileRoot    string

	mu       sync.Mutex
	state    sessionState
	username string

	// outbound feeds the writer goroutine. Bounded: see Deliver.
	outbound chan wire.Envelope

	// pause hands write ownership of the socket to the read loop for
	// the duration of a file transfer. The writer goroutine parks
	// until the received channel is closed.
	pause chan chan struct{}

	// kick carries an operator-initiated disconnect notice. The writer
	// flushes pending envelopes, writes the notice, and closes.
	kick chan wire.Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// ID returns the session's unique identifier (assigned on accept).
func (s *Session) ID() string { return s.id }

// Name returns the logged-in username, or "" before login.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Deliver enqueues an envelope for the session's writer goroutine.
// Never blocks: if the queue is full the session is closed and
// ErrQueueFull is returned (disconnect-on-overflow policy).
func (s *Session) Deliver(envelope wire.Envelope) error {
	select {
	case s.outbound <- envelope:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
		s.logger.Warn("outbound queue overflow, disconnecting slow client", "user", s.Name())
		s.Close()
		return ErrQueueFull
	}
}

// Kick delivers an operator-initiated disconnect notice and closes the
// session once the writer has flushed it. Safe to call from any
// goroutine; never blocks.
func (s *Session) Kick(envelope wire.Envelope) {
	select {
	case s.kick <- envelope:
	case <-s.closed:
	default:
		// A kick is already pending or the writer is unreachable.
		s.Close()
	}
}

// Close tears the session down: unblocks the read loop and the writer
// goroutine by closing the connection. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// run is the session's read loop. It blocks reading one line at a
// time, dispatching each envelope by tag, until the connection ends.
// Runs on a worker pool slot; see Server.acceptLoop.
func (s *Session) run(ctx context.Context) {
	defer s.teardown()
	go s.writeLoop()

	if err := s.Deliver(wire.NewWelcome(welcomeText)); err != nil {
		return
	}

	for {
		envelope, err := s.reader.ReadEnvelope()
		if err != nil {
			switch {
			case errors.Is(err, wire.ErrMalformed):
				// No line-level recovery: a peer that breaks framing
				// once cannot be trusted to be in sync again.
				s.logger.Error("protocol error, closing session", "error", err)
			case netutil.IsExpectedCloseError(err):
				s.logger.Debug("connection closed", "remote", s.conn.RemoteAddr())
			default:
				s.logger.Error("read failed", "error", err)
			}
			return
		}
		if err := s.dispatch(ctx, envelope); err != nil {
			if errors.Is(err, errDisconnectRequested) {
				s.logger.Info("client requested disconnect", "user", s.Name())
			}
			return
		}
	}
}

// dispatch routes one envelope by tag. Unrecognized tags are logged
// and ignored, never fatal.
func (s *Session) dispatch(ctx context.Context, envelope wire.Envelope) error {
	switch {
	case envelope.IsType(wire.TypeLogin):
		s.handleLogin(envelope)
	case envelope.IsType(wire.TypeMessage):
		s.handleMessage(envelope)
	case envelope.IsType(wire.TypeCommand):
		s.handleCommand(ctx, envelope)
	case envelope.IsType(wire.TypeFileRequest):
		s.handleFileRequest(envelope)
	case envelope.IsType(wire.TypeDisconnect):
		return errDisconnectRequested
	default:
		s.logger.Debug("ignoring unrecognized envelope", "type", envelope.Type)
	}
	return nil
}

// handleLogin moves the session from Connected to LoggedIn: registers
// the username and announces the arrival. An empty username is ignored
// (the session stays anonymous), as is a second login.
func (s *Session) handleLogin(envelope wire.Envelope) {
	username := envelope.Username
	if username == "" {
		s.logger.Warn("login with empty username ignored", "remote", s.conn.RemoteAddr())
		return
	}

	s.mu.Lock()
	if s.state != stateConnected {
		current := s.username
		s.mu.Unlock()
		s.logger.Warn("duplicate login ignored", "user", current, "requested", username)
		return
	}
	s.state = stateLoggedIn
	s.username = username
	s.mu.Unlock()

	s.registry.Put(username, s)
	s.logger.Info("user logged in", "user", username)
	s.broadcaster.Broadcast(wire.NewNotification(username + " has joined the chat"))
}

// handleMessage routes chat text: the "ls" shortcut answers privately
// with the server's working directory listing, "all" fans out, and any
// other recipient is a point-to-point registry lookup. A routing miss
// is logged and dropped; the sender gets no protocol-level NACK.
func (s *Session) handleMessage(envelope wire.Envelope) {
	from := envelope.Username
	if from == "" {
		from = "unknown"
	}
	to := envelope.To
	if to == "" {
		to = wire.BroadcastTarget
	}
	text := envelope.Message

	if strings.EqualFold(text, "ls") {
		s.sendDirectoryListing(from)
		return
	}

	if strings.EqualFold(to, wire.BroadcastTarget) {
		s.logger.Info("broadcast message", "from", from)
		s.broadcaster.Broadcast(wire.NewChat(from, text))
		return
	}

	if err := s.broadcaster.Send(to, wire.NewChat(from, text)); err != nil {
		s.logger.Error("client not found", "to", to, "from", from, "error", err)
		return
	}
	s.logger.Info("direct message", "from", from, "to", to)
}

// sendDirectoryListing replies privately to this session with the
// entries of the server's working directory, as an ordinary chat
// message from "Server".
func (s *Session) sendDirectoryListing(from string) {
	var builder strings.Builder
	builder.WriteString("Directory contents:\n")

	entries, err := os.ReadDir(".")
	if err != nil || len(entries) == 0 {
		builder.WriteString("No files found.")
	} else {
		for _, entry := range entries {
			builder.WriteString(entry.Name())
			builder.WriteString("\n")
		}
	}

	if err := s.Deliver(wire.NewChat("Server", builder.String())); err != nil {
		s.logger.Warn("directory listing delivery failed", "error", err)
		return
	}
	s.logger.Info("sent directory listing", "to", from)
}

// writeLoop is the session's single writer: every outbound byte for
// this connection goes through here, except during a file transfer's
// raw phase, when the read loop holds the pause and writes directly.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case envelope := <-s.outbound:
			if !s.writeEnvelope(envelope) {
				return
			}
		case notice := <-s.kick:
			s.drainOutbound()
			s.writeEnvelope(notice)
			s.Close()
			return
		case resume := <-s.pause:
			<-resume
		}
	}
}

// writeEnvelope writes one envelope, closing the session on failure.
// Reports whether the writer should continue.
func (s *Session) writeEnvelope(envelope wire.Envelope) bool {
	if err := s.writer.WriteEnvelope(envelope); err != nil {
		if !netutil.IsExpectedCloseError(err) {
			s.logger.Warn("write failed", "type", envelope.Type, "error", err)
		}
		s.Close()
		return false
	}
	return true
}

// drainOutbound writes whatever is already queued, without blocking
// for more. Used before a kick notice so the victim still receives
// everything sent to it beforehand.
func (s *Session) drainOutbound() {
	for {
		select {
		case envelope := <-s.outbound:
			if !s.writeEnvelope(envelope) {
				return
			}
		default:
			return
		}
	}
}

// teardown runs exactly once when the read loop exits: closes the
// connection, unregisters, and announces the departure if the session
// ever logged in. A session that never logged in leaves only a log
// entry.
func (s *Session) teardown() {
	s.Close()

	s.mu.Lock()
	name := s.username
	s.state = stateClosed
	s.mu.Unlock()

	if name == "" {
		s.logger.Info("client left", "remote", s.conn.RemoteAddr())
		return
	}

	s.registry.Release(name, s)
	s.logger.Info("user disconnected", "user", name)
	s.broadcaster.Broadcast(wire.NewNotification(name + " has left the chat"))
}
