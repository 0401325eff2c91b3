// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/parley-project/parley/lib/filehash"
	"github.com/parley-project/parley/wire"
)

// incomingTransfer tracks one in-flight download between file_info and
// transfer_complete. Owned by the read loop; no locking needed.
type incomingTransfer struct {
	filename string
	path     string
	size     int64
}

// receiveFile runs the receiving side of one transfer: open the
// destination, signal file_ready, consume exactly the announced number
// of raw bytes, then wait for transfer_complete (handled by
// finishTransfer) to verify the checksum.
//
// If the destination cannot be opened the client sends no reply; the
// server is left waiting on this connection and the read loop with it,
// which ends the session. Declining cleanly would need a protocol-level
// NACK that the wire format does not carry.
func (c *Client) receiveFile(info wire.Envelope) {
	name := filepath.Base(info.Filename)
	path := filepath.Join(c.downloadDir, name)

	file, err := os.Create(path)
	if err != nil {
		c.events <- Event{Transfer: &TransferResult{
			Filename: name,
			Err:      fmt.Errorf("creating %s: %w", path, err),
		}}
		c.Close()
		return
	}

	if err := c.writeEnvelope(wire.NewFileReady()); err != nil {
		file.Close()
		c.events <- Event{Transfer: &TransferResult{Filename: name, Err: err}}
		c.Close()
		return
	}

	err = c.reader.CopyRawN(file, info.Size)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// The framings are desynchronized; the connection is done.
		c.events <- Event{Transfer: &TransferResult{Filename: name, Path: path, Err: err}}
		c.Close()
		return
	}

	c.pending = &incomingTransfer{filename: name, path: path, size: info.Size}
	c.logger.Debug("raw phase complete",
		"file", name,
		"size", humanize.IBytes(uint64(info.Size)),
	)
}

// finishTransfer handles transfer_complete: verify the destination
// file's digest against the announced checksum and surface the result.
// A transfer_complete with no pending download is a stray and is
// dropped.
func (c *Client) finishTransfer(envelope wire.Envelope) {
	pending := c.pending
	c.pending = nil
	if pending == nil {
		c.logger.Warn("stray transfer_complete", "file", envelope.Filename)
		return
	}

	result := TransferResult{
		Filename: pending.filename,
		Path:     pending.path,
		Size:     pending.size,
	}
	if envelope.Checksum != "" {
		digest, err := filehash.File(pending.path)
		switch {
		case err != nil:
			result.Err = err
		case digest != envelope.Checksum:
			result.Err = fmt.Errorf("checksum mismatch for %s: got %s, want %s",
				pending.filename, digest, envelope.Checksum)
		}
	}
	c.events <- Event{Transfer: &result}
}

// abortPending surfaces a connection loss that interrupted a transfer
// still waiting for its transfer_complete.
func (c *Client) abortPending() {
	pending := c.pending
	c.pending = nil
	if pending == nil {
		return
	}
	c.events <- Event{Transfer: &TransferResult{
		Filename: pending.filename,
		Path:     pending.path,
		Err:      fmt.Errorf("connection closed before transfer of %s was confirmed", pending.filename),
	}}
}

// pendingName names the download a file_error refers to, if one is in
// flight.
func (c *Client) pendingName() string {
	if c.pending != nil {
		return c.pending.filename
	}
	return ""
}
