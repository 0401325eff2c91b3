// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the Parley connection engine: the TCP
// listener, the per-connection session state machine, the shared
// client registry, message routing, remote command execution, and the
// file-transfer handshake that switches a socket from line framing to
// raw byte streaming mid-session.
//
// The package is organized around the connection data flow:
//
//   - server.go: listener lifecycle, bounded worker pool, shutdown drain
//   - session.go: per-connection state machine, read loop, single-writer
//     goroutine, bounded outbound queue
//   - registry.go: username → session table shared across sessions
//   - broadcast.go: fan-out and directed delivery over registry snapshots
//   - transfer.go: file-transfer handshake and the raw byte phase
//   - exec.go: gated shell command execution
//   - admin.go: operator control surface on a unix socket
//
// Concurrency model: one goroutine pair per connection (read loop plus
// writer), drawn from a bounded worker pool. The registry is the only
// state shared across sessions; delivery always goes through a
// session's bounded outbound queue, so no goroutine ever holds the
// registry lock across a network write and a stalled peer cannot delay
// delivery to anyone else.
package server
