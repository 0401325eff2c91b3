// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sort"
	"sync"
)

// Registry is the shared table mapping logged-in usernames to their
// sessions. Insertion happens only after a successful login; removal
// on disconnect (any cause) or operator-forced disconnect.
//
// All methods are safe for concurrent use. Callers never hold the
// registry lock across a network write: delivery goes through the
// target session's outbound queue, and iteration works on snapshots.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put registers a session under the given username. A second login
// with a name already present silently overwrites the mapping to the
// newest session; the prior session stays connected but is no longer
// reachable by name. This matches the observed protocol behavior.
func (r *Registry) Put(name string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[name] = session
}

// Get returns the session currently registered under name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[name]
	return session, ok
}

// Remove unregisters name unconditionally and returns the session that
// was registered. Used by the operator's forced disconnect.
func (r *Registry) Remove(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	return session, ok
}

// Release unregisters name only if it still maps to the given session.
// Session teardown uses this so that a session replaced by a duplicate
// login does not unregister its replacement when it finally exits.
func (r *Registry) Release(name string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[name] != session {
		return false
	}
	delete(r.sessions, name)
	return true
}

// Snapshot returns a point-in-time copy of the registered sessions,
// decoupling iteration from concurrent mutation.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Names returns the registered usernames, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
