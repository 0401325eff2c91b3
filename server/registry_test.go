// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"reflect"
	"testing"
)

func TestRegistryPutGet(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	alice := &Session{id: "a"}

	registry.Put("alice", alice)
	got, ok := registry.Get("alice")
	if !ok || got != alice {
		t.Fatal("Get did not return the registered session")
	}
	if _, ok := registry.Get("bob"); ok {
		t.Fatal("Get returned a session for an unregistered name")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len = %d, want 1", registry.Len())
	}
}

func TestRegistryPutOverwrites(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	first := &Session{id: "first"}
	second := &Session{id: "second"}

	registry.Put("alice", first)
	registry.Put("alice", second)

	got, ok := registry.Get("alice")
	if !ok || got != second {
		t.Fatal("second login did not overwrite the mapping")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len = %d, want 1", registry.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	alice := &Session{id: "a"}
	registry.Put("alice", alice)

	got, ok := registry.Remove("alice")
	if !ok || got != alice {
		t.Fatal("Remove did not return the registered session")
	}
	if _, ok := registry.Get("alice"); ok {
		t.Fatal("session still registered after Remove")
	}
	if _, ok := registry.Remove("alice"); ok {
		t.Fatal("second Remove reported success")
	}
}

func TestRegistryReleaseOnlyRemovesOwnEntry(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	replaced := &Session{id: "replaced"}
	current := &Session{id: "current"}

	registry.Put("alice", replaced)
	registry.Put("alice", current)

	// The replaced session's teardown must not unregister its
	// replacement.
	if registry.Release("alice", replaced) {
		t.Fatal("Release removed an entry owned by another session")
	}
	if got, ok := registry.Get("alice"); !ok || got != current {
		t.Fatal("current session lost its registration")
	}

	if !registry.Release("alice", current) {
		t.Fatal("Release refused the owning session")
	}
	if registry.Len() != 0 {
		t.Fatalf("Len = %d, want 0", registry.Len())
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		registry.Put(name, &Session{id: name})
	}
	want := []string{"alice", "bob", "carol"}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()
	registry.Put("alice", &Session{id: "a"})

	snapshot := registry.Snapshot()
	registry.Remove("alice")

	if len(snapshot) != 1 {
		t.Fatalf("snapshot length %d changed after Remove", len(snapshot))
	}
}
