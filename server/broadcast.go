// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/parley-project/parley/wire"
)

// ErrUnknownClient reports a directed delivery to a username with no
// registry entry.
var ErrUnknownClient = errors.New("server: unknown client")

// Broadcaster fans envelopes out to registered sessions. Delivery is
// an enqueue onto each target's bounded outbound queue: a failure for
// one entry is logged and does not abort the fan-out to the rest, and
// a slow peer never delays delivery to others.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast delivers the envelope to every registered session.
func (b *Broadcaster) Broadcast(envelope wire.Envelope) {
	for _, session := range b.registry.Snapshot() {
		if err := session.Deliver(envelope); err != nil {
			b.logger.Warn("broadcast delivery failed",
				"user", session.Name(),
				"session", session.ID(),
				"type", envelope.Type,
				"error", err,
			)
		}
	}
}

// Send delivers the envelope to the named session. Returns
// ErrUnknownClient when no session is registered under that name.
func (b *Broadcaster) Send(to string, envelope wire.Envelope) error {
	session, ok := b.registry.Get(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, to)
	}
	return session.Deliver(envelope)
}
