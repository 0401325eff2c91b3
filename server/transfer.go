// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/parley-project/parley/lib/filehash"
	"github.com/parley-project/parley/wire"
)

// handleFileRequest serves one file download. The transfer switches the
// socket from line framing to a raw byte phase, so the read loop takes
// exclusive write ownership for the duration:
//
//  1. pause the writer goroutine
//  2. send file_info (name and exact size)
//  3. wait for the client's file_ready
//  4. stream exactly size raw bytes
//  5. send transfer_complete carrying the content checksum
//  6. resume the writer
//
// A failure inside the raw phase (steps 3-4) leaves the two framings
// desynchronized, so it closes the connection. Failures before the raw
// phase begins reply with file_error and keep the session alive.
func (s *Session) handleFileRequest(envelope wire.Envelope) {
	// Serve only from the configured root, by bare name. A request
	// carrying path separators or dot segments collapses to its final
	// element and, almost always, to a miss.
	name := filepath.Base(envelope.Filename)
	if name == "." || name == string(filepath.Separator) {
		s.deliverFileError(envelope.Filename)
		return
	}
	path := filepath.Join(s.fileRoot, name)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.logger.Warn("file request miss", "file", envelope.Filename, "user", s.Name())
		s.deliverFileError(envelope.Filename)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		s.logger.Error("file open failed", "file", name, "error", err)
		s.deliverFileError(envelope.Filename)
		return
	}
	defer file.Close()
	size := info.Size()

	// Take exclusive write ownership of the socket. Envelopes queued
	// by other sessions wait on the outbound channel until resume.
	resume := make(chan struct{})
	select {
	case s.pause <- resume:
	case <-s.closed:
		return
	}
	defer close(resume)

	if err := s.writer.WriteEnvelope(wire.NewFileInfo(name, size)); err != nil {
		s.logger.Warn("file_info write failed", "file", name, "error", err)
		s.Close()
		return
	}

	ready, err := s.reader.ReadEnvelope()
	if err != nil {
		s.logger.Warn("transfer aborted waiting for receiver", "file", name, "error", err)
		s.Close()
		return
	}
	if !ready.IsType(wire.TypeFileReady) {
		// The client declined (or broke protocol). Nothing raw has
		// been written yet, so the session survives.
		s.logger.Warn("receiver not ready, transfer cancelled",
			"file", name, "got", ready.Type, "user", s.Name())
		return
	}

	hasher := filehash.NewHasher()
	if err := s.writer.StreamRawN(io.TeeReader(file, hasher), size); err != nil {
		s.logger.Error("transfer stream failed", "file", name, "error", err)
		s.Close()
		return
	}

	if err := s.writer.WriteEnvelope(wire.NewTransferComplete(name, hasher.SumHex())); err != nil {
		s.logger.Warn("transfer_complete write failed", "file", name, "error", err)
		s.Close()
		return
	}

	s.logger.Info("file sent",
		"file", name,
		"size", humanize.IBytes(uint64(size)),
		"user", s.Name(),
	)
}

// deliverFileError reports a failed request via the ordinary outbound
// queue; the session stays usable.
func (s *Session) deliverFileError(requested string) {
	if err := s.Deliver(wire.NewFileError("File not found: " + requested)); err != nil {
		s.logger.Warn("file_error delivery failed", "file", requested, "error", err)
	}
}
