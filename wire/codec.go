// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxLineBytes is the maximum accepted length of a single protocol
// line. 1 MB is generous for chat text and directory listings; a line
// exceeding it is treated as malformed.
const MaxLineBytes = 1024 * 1024

// ErrMalformed reports a line that is not a well-formed envelope. The
// session layer treats this as fatal for the offending connection (no
// line-level recovery), but logs it distinctly from transport errors.
var ErrMalformed = errors.New("wire: malformed envelope")

// Reader decodes protocol lines from a connection. It owns the
// buffering for the connection's read side: the raw byte phase of a
// file transfer must be consumed through CopyRawN on the same Reader,
// never directly from the underlying connection, or buffered bytes
// are lost and the two framings desynchronize.
type Reader struct {
	buffered *bufio.Reader
}

// NewReader creates a Reader buffering the given connection.
func NewReader(r io.Reader) *Reader {
	return &Reader{buffered: bufio.NewReader(r)}
}

// ReadEnvelope reads one line and decodes it as an Envelope. I/O
// errors (EOF included) are returned as-is; a line that is not valid
// JSON wraps ErrMalformed. An envelope with an empty or unrecognized
// type tag is returned without error — dispatch ignores it.
func (r *Reader) ReadEnvelope() (Envelope, error) {
	line, err := r.readLine()
	if err != nil {
		return Envelope{}, err
	}
	line = bytes.TrimRight(line, "\r\n")

	var envelope Envelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return envelope, nil
}

// readLine reads up to and including the next newline. The length cap
// is enforced while reading, so an oversized line fails after at most
// MaxLineBytes plus one buffer of allocation instead of being slurped
// whole.
func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	for {
		// chunk aliases the bufio buffer; it must be copied before the
		// next read.
		chunk, err := r.buffered.ReadSlice('\n')
		if len(line)+len(chunk) > MaxLineBytes {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, MaxLineBytes)
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			// No newline yet; keep accumulating.
		default:
			// A partial line at EOF is data the peer never terminated;
			// report the transport error, not a parse error.
			return nil, err
		}
	}
}

// CopyRawN consumes exactly n raw bytes from the connection — the
// unframed phase of a file transfer — and writes them to dst. Line
// framing resumes at the byte after the n-th. Returns an error if the
// stream ends early; in that case the framings cannot be resynchronized
// and the connection must be closed.
func (r *Reader) CopyRawN(dst io.Writer, n int64) error {
	copied, err := io.CopyN(dst, r.buffered, n)
	if err != nil {
		return fmt.Errorf("raw phase ended after %d of %d bytes: %w", copied, n, err)
	}
	return nil
}

// Writer encodes protocol lines onto a connection. Writers are not
// safe for concurrent use; the session layer serializes all writes to
// a connection through a single owner.
type Writer struct {
	buffered *bufio.Writer
}

// RawChunkBytes sizes the write buffer, which sets the chunk size for
// the raw byte phase of a file transfer.
const RawChunkBytes = 8 * 1024

// NewWriter creates a Writer buffering the given connection.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buffered: bufio.NewWriterSize(w, RawChunkBytes)}
}

// WriteEnvelope encodes the envelope as one JSON line and flushes it.
func (w *Writer) WriteEnvelope(envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", envelope.Type, err)
	}
	if _, err := w.buffered.Write(data); err != nil {
		return err
	}
	if err := w.buffered.WriteByte('\n'); err != nil {
		return err
	}
	return w.buffered.Flush()
}

// StreamRawN copies exactly n bytes from src onto the connection with
// no framing, then flushes. The byte count is the contract: the peer
// resumes line reads after exactly n bytes, so a short copy is an
// unrecoverable framing error for the connection.
func (w *Writer) StreamRawN(src io.Reader, n int64) error {
	written, err := io.CopyN(w.buffered, src, n)
	if err != nil {
		return fmt.Errorf("raw phase aborted after %d of %d bytes: %w", written, n, err)
	}
	return w.buffered.Flush()
}
