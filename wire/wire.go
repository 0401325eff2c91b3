// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the Parley wire protocol: newline-delimited
// UTF-8 JSON envelopes over a TCP connection, with one exception — the
// raw byte phase of a file transfer, which is exactly the declared
// number of unframed bytes, immediately followed by resumption of line
// framing.
//
// The package is organized around the protocol surface:
//
//   - wire.go: envelope tags, the Envelope union, constructors
//   - codec.go: Reader/Writer for the line framing and the raw phase
//
// Both ends of a transfer must agree, from the declared size, on
// exactly where line framing resumes. Reader and Writer expose the raw
// phase explicitly (CopyRawN, StreamRawN) so callers cannot desync the
// two framings by accident.
package wire

import "strings"

// Envelope tags. Tag matching is case-insensitive on receipt (use
// IsType); the canonical spellings below are what Parley emits.
const (
	// TypeWelcome greets a client immediately on accept. Server→client.
	TypeWelcome = "welcome"

	// TypeLogin claims a username for the connection. Client→server.
	TypeLogin = "login"

	// TypeMessage carries chat text. Either direction. Client→server
	// envelopes set Username (claimed sender) and To (recipient name,
	// or "all"); server→client envelopes set From and Message.
	TypeMessage = "message"

	// TypeNotification announces membership changes ("x has joined the
	// chat"). Server→client.
	TypeNotification = "notification"

	// TypeCommand requests shell execution on the server host.
	// Client→server. Carries Command and Username.
	TypeCommand = "command"

	// TypeCommandResult returns captured command output. Server→client.
	TypeCommandResult = "commandResult"

	// TypeFileRequest asks the server to push a file. Client→server.
	// Carries Filename and Username.
	TypeFileRequest = "file_request"

	// TypeFileInfo announces an imminent transfer. Server→client.
	// Carries Filename and Size; exactly Size raw bytes follow the
	// peer's TypeFileReady reply.
	TypeFileInfo = "file_info"

	// TypeFileReady signals the receiver has opened its destination and
	// will consume the raw byte phase. Client→server. No payload.
	TypeFileReady = "file_ready"

	// TypeTransferComplete confirms the raw phase ended. Server→client.
	// Carries Filename and a hex BLAKE3 Checksum of the streamed bytes.
	TypeTransferComplete = "transfer_complete"

	// TypeFileError reports a transfer failure where a control channel
	// still exists (e.g. the file does not exist). Server→client.
	TypeFileError = "file_error"

	// TypeDisconnect ends a session. Either direction: clients send it
	// to leave; the server pushes it for operator-forced disconnects.
	TypeDisconnect = "disconnect"

	// TypeShutdown notifies every registered client that the server is
	// stopping. Server→client.
	TypeShutdown = "shutdown"
)

// BroadcastTarget is the reserved recipient name that fans a message
// out to every registered client. Matched case-insensitively.
const BroadcastTarget = "all"

// Envelope is the tagged union carried by every protocol line. Type is
// always set; the remaining fields are populated per tag (see the tag
// constants). Unrecognized tags and unknown fields are ignored by both
// ends, never fatal.
type Envelope struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Message  string `json:"message,omitempty"`
	Command  string `json:"command,omitempty"`
	Result   string `json:"result,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// IsType reports whether the envelope carries the given tag. Tags are
// matched case-insensitively, mirroring the observed protocol.
func (e Envelope) IsType(tag string) bool {
	return strings.EqualFold(e.Type, tag)
}

// NewWelcome creates the greeting sent on accept.
func NewWelcome(message string) Envelope {
	return Envelope{Type: TypeWelcome, Message: message}
}

// NewLogin creates a login request claiming the given username.
func NewLogin(username string) Envelope {
	return Envelope{Type: TypeLogin, Username: username}
}

// NewChat creates a server→client chat message from the named sender.
func NewChat(from, text string) Envelope {
	return Envelope{Type: TypeMessage, From: from, Message: text}
}

// NewClientChat creates a client→server chat message. to is a username
// or BroadcastTarget.
func NewClientChat(username, to, text string) Envelope {
	return Envelope{Type: TypeMessage, Username: username, To: to, Message: text}
}

// NewNotification creates a membership notification.
func NewNotification(message string) Envelope {
	return Envelope{Type: TypeNotification, Message: message}
}

// NewCommand creates a command execution request.
func NewCommand(username, command string) Envelope {
	return Envelope{Type: TypeCommand, Username: username, Command: command}
}

// NewCommandResult creates a command output reply.
func NewCommandResult(from, result string) Envelope {
	return Envelope{Type: TypeCommandResult, From: from, Result: result}
}

// NewFileRequest creates a file transfer request.
func NewFileRequest(username, filename string) Envelope {
	return Envelope{Type: TypeFileRequest, Username: username, Filename: filename}
}

// NewFileInfo announces a transfer of exactly size raw bytes.
func NewFileInfo(filename string, size int64) Envelope {
	return Envelope{Type: TypeFileInfo, Filename: filename, Size: size}
}

// NewFileReady creates the receiver's readiness reply.
func NewFileReady() Envelope {
	return Envelope{Type: TypeFileReady}
}

// NewTransferComplete confirms a finished transfer. checksum is the
// hex BLAKE3 digest of the streamed bytes.
func NewTransferComplete(filename, checksum string) Envelope {
	return Envelope{Type: TypeTransferComplete, Filename: filename, Checksum: checksum}
}

// NewFileError reports a transfer failure with a human-readable cause.
func NewFileError(message string) Envelope {
	return Envelope{Type: TypeFileError, Message: message}
}

// NewDisconnect creates a disconnect notice.
func NewDisconnect(message string) Envelope {
	return Envelope{Type: TypeDisconnect, Message: message}
}

// NewShutdown creates the server-stopping notice.
func NewShutdown(message string) Envelope {
	return Envelope{Type: TypeShutdown, Message: message}
}
