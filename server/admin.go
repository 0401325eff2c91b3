// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/parley-project/parley/lib/codec"
	"github.com/parley-project/parley/lib/netutil"
	"github.com/parley-project/parley/wire"
)

// AdminDisconnectKeyword is the magic message body that turns a
// directed admin send into a forced disconnect of the recipient.
// Matched case-insensitively.
const AdminDisconnectKeyword = "disconnect"

// Admin socket actions.
const (
	AdminActionSend  = "send"
	AdminActionList  = "list"
	AdminActionStop  = "stop"
	AdminActionStart = "start"
)

// AdminRequest is one operator command, CBOR-encoded on the admin
// socket. Each connection carries exactly one request and one response.
type AdminRequest struct {
	Action  string `cbor:"action"`
	To      string `cbor:"to,omitempty"`
	Message string `cbor:"message,omitempty"`
}

// AdminResponse reports the outcome of an AdminRequest.
type AdminResponse struct {
	OK    bool     `cbor:"ok"`
	Error string   `cbor:"error,omitempty"`
	Data  []string `cbor:"data,omitempty"`
}

// AdminServer serves the operator control surface on a unix socket:
// messaging clients as "Server", listing who is connected, forcing
// disconnects, and starting or stopping the chat listener. Local-only
// on purpose; filesystem permissions are the access control.
type AdminServer struct {
	server *Server
	path   string
	logger *slog.Logger
}

// NewAdminServer creates an admin surface controlling the given
// server, listening at the given socket path.
func NewAdminServer(server *Server, path string, logger *slog.Logger) *AdminServer {
	return &AdminServer{server: server, path: path, logger: logger}
}

// Serve listens on the admin socket until ctx is cancelled. A stale
// socket file from an earlier run is removed before binding. Serve
// returns after every in-flight request handler has finished.
func (a *AdminServer) Serve(ctx context.Context) error {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale admin socket %s: %w", a.path, err)
	}

	listener, err := net.Listen("unix", a.path)
	if err != nil {
		return fmt.Errorf("binding admin socket %s: %w", a.path, err)
	}
	a.logger.Info("admin socket listening", "path", a.path)

	// Closing the listener is the only way to unblock Accept.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var handlers sync.WaitGroup
	defer handlers.Wait()
	defer os.Remove(a.path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("admin socket accept: %w", err)
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			defer conn.Close()
			a.handle(conn)
		}()
	}
}

// handle services one connection: decode a request, act, reply.
func (a *AdminServer) handle(conn net.Conn) {
	var request AdminRequest
	if err := codec.NewDecoder(conn).Decode(&request); err != nil {
		a.logger.Warn("undecodable admin request", "error", err)
		return
	}

	response := a.execute(request)
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		a.logger.Warn("admin response write failed", "action", request.Action, "error", err)
	}
}

func (a *AdminServer) execute(request AdminRequest) AdminResponse {
	switch request.Action {
	case AdminActionSend:
		return a.send(request)
	case AdminActionList:
		return AdminResponse{OK: true, Data: a.server.Registry().Names()}
	case AdminActionStop:
		a.server.Stop()
		return AdminResponse{OK: true}
	case AdminActionStart:
		if err := a.server.Start(); err != nil {
			return AdminResponse{Error: err.Error()}
		}
		return AdminResponse{OK: true}
	default:
		return AdminResponse{Error: fmt.Sprintf("unknown action %q", request.Action)}
	}
}

// send delivers an operator message. "all" broadcasts as a chat
// message from "Server"; a named recipient gets a direct message —
// unless the body is the disconnect keyword, which forcibly removes
// and disconnects that client instead.
func (a *AdminServer) send(request AdminRequest) AdminResponse {
	if request.To == "" {
		return AdminResponse{Error: "send requires a recipient"}
	}

	if strings.EqualFold(request.To, wire.BroadcastTarget) {
		a.logger.Info("admin broadcast")
		a.server.Broadcaster().Broadcast(wire.NewChat("Server", request.Message))
		return AdminResponse{OK: true}
	}

	if strings.EqualFold(request.Message, AdminDisconnectKeyword) {
		session, ok := a.server.Registry().Remove(request.To)
		if !ok {
			return AdminResponse{Error: fmt.Sprintf("no client named %q", request.To)}
		}
		a.logger.Info("admin forced disconnect", "user", request.To)
		session.Kick(wire.NewDisconnect(disconnectText))
		return AdminResponse{OK: true}
	}

	if err := a.server.Broadcaster().Send(request.To, wire.NewChat("Server", request.Message)); err != nil {
		return AdminResponse{Error: err.Error()}
	}
	a.logger.Info("admin direct message", "to", request.To)
	return AdminResponse{OK: true}
}
