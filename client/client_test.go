// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/parley-project/parley/lib/filehash"
	"github.com/parley-project/parley/lib/testutil"
	"github.com/parley-project/parley/wire"
)

const eventTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedPeer accepts one connection and hands it to script on its
// own goroutine, so tests can play the server side of the protocol.
func scriptedPeer(t *testing.T, script func(t *testing.T, reader *wire.Reader, writer *wire.Writer)) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(t, wire.NewReader(conn), wire.NewWriter(conn))
	}()
	return listener.Addr().String()
}

func dialScripted(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(addr, "alice", Options{
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDialSendsLogin(t *testing.T) {
	t.Parallel()
	got := make(chan wire.Envelope, 1)
	addr := scriptedPeer(t, func(t *testing.T, reader *wire.Reader, writer *wire.Writer) {
		envelope, err := reader.ReadEnvelope()
		if err != nil {
			t.Errorf("reading login: %v", err)
			return
		}
		got <- envelope
	})

	dialScripted(t, addr)

	login := testutil.RequireReceive(t, got, eventTimeout, "login envelope")
	if !login.IsType(wire.TypeLogin) || login.Username != "alice" {
		t.Fatalf("login = %+v", login)
	}
}

func TestDialRequiresUsername(t *testing.T) {
	t.Parallel()
	if _, err := Dial("127.0.0.1:1", "", Options{}); err == nil {
		t.Fatal("Dial accepted an empty username")
	}
}

func TestTransferVerifiesChecksum(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("x"), 1000)

	addr := scriptedPeer(t, func(t *testing.T, reader *wire.Reader, writer *wire.Writer) {
		if _, err := reader.ReadEnvelope(); err != nil { // login
			return
		}
		writer.WriteEnvelope(wire.NewFileInfo("data.bin", int64(len(payload))))
		if ready, err := reader.ReadEnvelope(); err != nil || !ready.IsType(wire.TypeFileReady) {
			t.Errorf("expected file_ready, got %+v (%v)", ready, err)
			return
		}
		writer.StreamRawN(bytes.NewReader(payload), int64(len(payload)))
		writer.WriteEnvelope(wire.NewTransferComplete("data.bin", "0000deadbeef"))
	})

	c := dialScripted(t, addr)
	event := testutil.RequireReceive(t, c.Events(), eventTimeout, "transfer result")
	if event.Transfer == nil {
		t.Fatalf("expected a transfer event, got %+v", event)
	}
	if event.Transfer.Err == nil || !strings.Contains(event.Transfer.Err.Error(), "checksum mismatch") {
		t.Fatalf("err = %v, want checksum mismatch", event.Transfer.Err)
	}
}

func TestTransferAcceptsMatchingChecksum(t *testing.T) {
	t.Parallel()
	payload := []byte("well-formed payload")
	hasher := filehash.NewHasher()
	hasher.Write(payload)
	digest := hasher.SumHex()

	addr := scriptedPeer(t, func(t *testing.T, reader *wire.Reader, writer *wire.Writer) {
		if _, err := reader.ReadEnvelope(); err != nil { // login
			return
		}
		writer.WriteEnvelope(wire.NewFileInfo("data.bin", int64(len(payload))))
		if _, err := reader.ReadEnvelope(); err != nil { // file_ready
			return
		}
		writer.StreamRawN(bytes.NewReader(payload), int64(len(payload)))
		writer.WriteEnvelope(wire.NewTransferComplete("data.bin", digest))
	})

	c := dialScripted(t, addr)
	event := testutil.RequireReceive(t, c.Events(), eventTimeout, "transfer result")
	if event.Transfer == nil || event.Transfer.Err != nil {
		t.Fatalf("transfer = %+v", event.Transfer)
	}
	if event.Transfer.Size != int64(len(payload)) {
		t.Fatalf("size %d, want %d", event.Transfer.Size, len(payload))
	}
}

func TestConnectionLossDuringTransferSurfacesError(t *testing.T) {
	t.Parallel()
	payload := []byte("interrupted")

	addr := scriptedPeer(t, func(t *testing.T, reader *wire.Reader, writer *wire.Writer) {
		if _, err := reader.ReadEnvelope(); err != nil { // login
			return
		}
		writer.WriteEnvelope(wire.NewFileInfo("data.bin", int64(len(payload))))
		if _, err := reader.ReadEnvelope(); err != nil { // file_ready
			return
		}
		// Stream the raw bytes but hang up before transfer_complete.
		writer.StreamRawN(bytes.NewReader(payload), int64(len(payload)))
	})

	c := dialScripted(t, addr)
	event := testutil.RequireReceive(t, c.Events(), eventTimeout, "transfer result")
	if event.Transfer == nil || event.Transfer.Err == nil {
		t.Fatalf("expected a failed transfer, got %+v", event.Transfer)
	}
}

func TestDisconnectSendsEnvelope(t *testing.T) {
	t.Parallel()
	got := make(chan wire.Envelope, 1)
	addr := scriptedPeer(t, func(t *testing.T, reader *wire.Reader, writer *wire.Writer) {
		if _, err := reader.ReadEnvelope(); err != nil { // login
			return
		}
		envelope, err := reader.ReadEnvelope()
		if err != nil {
			t.Errorf("reading disconnect: %v", err)
			return
		}
		got <- envelope
	})

	c := dialScripted(t, addr)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	envelope := testutil.RequireReceive(t, got, eventTimeout, "disconnect envelope")
	if !envelope.IsType(wire.TypeDisconnect) {
		t.Fatalf("envelope = %+v", envelope)
	}
	testutil.RequireClosed(t, c.Done(), eventTimeout, "client done")
}
