// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements a Parley protocol client: it dials the
// server, logs in, surfaces inbound envelopes on a channel, and runs
// the receiving side of file transfers (including the raw byte phase
// and checksum verification).
package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/parley-project/parley/lib/netutil"
	"github.com/parley-project/parley/wire"
)

// eventBuffer bounds the inbound event channel. A consumer that stops
// draining eventually stalls the read loop, which is the right
// backpressure for an interactive client.
const eventBuffer = 64

// Client is one logged-in connection to a Parley server.
//
// Inbound envelopes arrive on Events; the channel closes when the
// connection ends, after which Err reports the cause. File transfer
// envelopes (file_info, transfer_complete, file_error) are consumed
// internally by the transfer state machine and do not appear on
// Events; every completed or failed transfer surfaces as a
// TransferResult instead.
type Client struct {
	username string
	conn     net.Conn
	reader   *wire.Reader
	writer   *wire.Writer
	logger   *slog.Logger

	// downloadDir is where received files land.
	downloadDir string

	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	// transfer state, owned by the read loop.
	pending *incomingTransfer
}

// Event is one inbound protocol event surfaced to the consumer.
type Event struct {
	// Envelope is the inbound envelope, zero for transfer events.
	Envelope wire.Envelope

	// Transfer reports a finished file transfer, nil otherwise.
	Transfer *TransferResult
}

// TransferResult reports the outcome of one received file.
type TransferResult struct {
	Filename string
	Path     string
	Size     int64
	Err      error
}

// Options adjusts Dial behavior.
type Options struct {
	// DownloadDir receives transferred files. Defaults to the current
	// directory.
	DownloadDir string

	// Logger for connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dial connects to addr, sends the login for username, and starts the
// read loop. The returned client is live immediately; the server's
// welcome arrives as the first event.
func Dial(addr, username string, opts Options) (*Client, error) {
	if username == "" {
		return nil, fmt.Errorf("client: username required")
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	c := &Client{
		username:    username,
		conn:        conn,
		reader:      wire.NewReader(conn),
		writer:      wire.NewWriter(conn),
		logger:      opts.Logger,
		downloadDir: opts.DownloadDir,
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
	}

	if err := c.writeEnvelope(wire.NewLogin(username)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending login: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// Username returns the name this client logged in with.
func (c *Client) Username() string { return c.username }

// Events returns the inbound event stream. Closed when the connection
// ends.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, or nil while it is live or
// after a clean close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send sends chat text to a username, or to everyone when to is "all".
func (c *Client) Send(to, text string) error {
	return c.writeEnvelope(wire.NewClientChat(c.username, to, text))
}

// Execute requests shell execution of command on the server host. The
// output arrives later as a commandResult event.
func (c *Client) Execute(command string) error {
	return c.writeEnvelope(wire.NewCommand(c.username, command))
}

// RequestFile asks the server to push the named file. The outcome
// arrives later as a transfer event.
func (c *Client) RequestFile(filename string) error {
	return c.writeEnvelope(wire.NewFileRequest(c.username, filename))
}

// Disconnect tells the server this client is leaving, then closes.
func (c *Client) Disconnect() error {
	err := c.writeEnvelope(wire.NewDisconnect(""))
	c.Close()
	return err
}

// Close tears the connection down without notifying the server.
// Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// writeEnvelope serializes concurrent senders onto the connection. The
// read loop also uses it for file_ready, which is safe: the server
// writes nothing that prompts a concurrent reply during the raw phase.
func (c *Client) writeEnvelope(envelope wire.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.WriteEnvelope(envelope)
}

// readLoop consumes inbound envelopes until the connection ends,
// routing transfer control envelopes to the transfer state machine and
// everything else to Events.
func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)
	defer c.Close()
	defer c.abortPending()

	for {
		envelope, err := c.reader.ReadEnvelope()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.setErr(err)
				c.logger.Error("connection lost", "error", err)
			}
			return
		}

		switch {
		case envelope.IsType(wire.TypeFileInfo):
			c.receiveFile(envelope)
		case envelope.IsType(wire.TypeTransferComplete):
			c.finishTransfer(envelope)
		case envelope.IsType(wire.TypeFileError):
			c.events <- Event{Transfer: &TransferResult{
				Filename: c.pendingName(),
				Err:      fmt.Errorf("%s", envelope.Message),
			}}
		case envelope.IsType(wire.TypeDisconnect), envelope.IsType(wire.TypeShutdown):
			c.events <- Event{Envelope: envelope}
			return
		default:
			c.events <- Event{Envelope: envelope}
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
