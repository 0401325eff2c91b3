// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server_test

import (
	"context"
	"net"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/parley-project/parley/client"
	"github.com/parley-project/parley/lib/codec"
	"github.com/parley-project/parley/lib/testutil"
	"github.com/parley-project/parley/server"
	"github.com/parley-project/parley/wire"
)

// startAdmin serves the admin surface for srv on a temp socket and
// returns its path.
func startAdmin(t *testing.T, srv *server.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.sock")
	admin := server.NewAdminServer(srv, path, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := admin.Serve(ctx); err != nil {
			t.Errorf("admin Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "admin Serve return")
	})

	// Serve binds asynchronously; wait until the socket accepts.
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return path
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin socket never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// adminRequest performs one request/response exchange.
func adminRequest(t *testing.T, path string, request server.AdminRequest) server.AdminResponse {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dialing admin socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("encoding admin request: %v", err)
	}
	var response server.AdminResponse
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding admin response: %v", err)
	}
	return response
}

func TestAdminList(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	alice := dialClient(t, srv, "alice")
	dialClient(t, srv, "bob")
	waitForEvent(t, alice, isNotification("bob has joined"), "bob registered")

	response := adminRequest(t, path, server.AdminRequest{Action: server.AdminActionList})
	if !response.OK {
		t.Fatalf("list refused: %s", response.Error)
	}
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(response.Data, want) {
		t.Fatalf("list = %v, want %v", response.Data, want)
	}
}

func TestAdminDirectMessage(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	alice := dialClient(t, srv, "alice")
	waitForEvent(t, alice, isNotification("alice has joined"), "alice registered")

	response := adminRequest(t, path, server.AdminRequest{
		Action:  server.AdminActionSend,
		To:      "alice",
		Message: "behave yourselves",
	})
	if !response.OK {
		t.Fatalf("send refused: %s", response.Error)
	}

	event := waitForEvent(t, alice, isChatFrom("Server"), "operator message")
	if event.Envelope.Message != "behave yourselves" {
		t.Fatalf("message %q", event.Envelope.Message)
	}
}

func TestAdminBroadcast(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")
	waitForEvent(t, alice, isNotification("bob has joined"), "bob registered")

	response := adminRequest(t, path, server.AdminRequest{
		Action:  server.AdminActionSend,
		To:      "all",
		Message: "maintenance at noon",
	})
	if !response.OK {
		t.Fatalf("broadcast refused: %s", response.Error)
	}
	for _, c := range []*client.Client{alice, bob} {
		event := waitForEvent(t, c, isChatFrom("Server"), "operator broadcast")
		if event.Envelope.Message != "maintenance at noon" {
			t.Fatalf("message %q", event.Envelope.Message)
		}
	}
}

func TestAdminForcedDisconnect(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")
	waitForEvent(t, alice, isNotification("bob has joined"), "bob registered")

	// The keyword is matched case-insensitively.
	response := adminRequest(t, path, server.AdminRequest{
		Action:  server.AdminActionSend,
		To:      "bob",
		Message: "Disconnect",
	})
	if !response.OK {
		t.Fatalf("forced disconnect refused: %s", response.Error)
	}

	event := waitForEvent(t, bob, func(event client.Event) bool {
		return event.Envelope.IsType(wire.TypeDisconnect)
	}, "disconnect notice")
	if event.Envelope.Message != "You have been disconnected by the server." {
		t.Fatalf("disconnect text %q", event.Envelope.Message)
	}
	testutil.RequireClosed(t, bob.Done(), 5*time.Second, "bob's connection")

	waitForEvent(t, alice, isNotification("bob has left the chat"), "leave notification")
	if _, ok := srv.Registry().Get("bob"); ok {
		t.Fatal("bob still registered after forced disconnect")
	}
}

func TestAdminForcedDisconnectUnknownUser(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	response := adminRequest(t, path, server.AdminRequest{
		Action:  server.AdminActionSend,
		To:      "ghost",
		Message: "disconnect",
	})
	if response.OK {
		t.Fatal("disconnect of unknown user reported success")
	}
	if !strings.Contains(response.Error, "ghost") {
		t.Fatalf("error %q does not name the user", response.Error)
	}
}

func TestAdminStopAndStart(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	if response := adminRequest(t, path, server.AdminRequest{Action: server.AdminActionStop}); !response.OK {
		t.Fatalf("stop refused: %s", response.Error)
	}
	if srv.Running() {
		t.Fatal("server still running after admin stop")
	}

	if response := adminRequest(t, path, server.AdminRequest{Action: server.AdminActionStart}); !response.OK {
		t.Fatalf("start refused: %s", response.Error)
	}
	if !srv.Running() {
		t.Fatal("server not running after admin start")
	}

	alice := dialClient(t, srv, "alice")
	waitForEvent(t, alice, isNotification("alice has joined"), "login after admin restart")
}

func TestAdminUnknownAction(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	path := startAdmin(t, srv)

	response := adminRequest(t, path, server.AdminRequest{Action: "reboot"})
	if response.OK {
		t.Fatal("unknown action reported success")
	}
	if !strings.Contains(response.Error, "reboot") {
		t.Fatalf("error %q does not name the action", response.Error)
	}
}
