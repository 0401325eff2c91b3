// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	fake := NewFake(time.Unix(1000, 0))

	ch := fake.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(3 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(2 * time.Second)
	select {
	case firedAt := <-ch:
		if !firedAt.Equal(time.Unix(1005, 0)) {
			t.Errorf("fired at %v, want %v", firedAt, time.Unix(1005, 0))
		}
	case <-time.After(time.Second):
		t.Fatal("After did not fire once the deadline passed")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()
	fake := NewFake(time.Unix(0, 0))
	select {
	case <-fake.After(0):
	case <-time.After(time.Second):
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeWaiters(t *testing.T) {
	t.Parallel()
	fake := NewFake(time.Unix(0, 0))
	if fake.Waiters() != 0 {
		t.Fatalf("Waiters = %d on a fresh clock", fake.Waiters())
	}

	fake.After(time.Second)
	fake.After(time.Minute)
	if fake.Waiters() != 2 {
		t.Fatalf("Waiters = %d, want 2", fake.Waiters())
	}

	fake.Advance(time.Second)
	if fake.Waiters() != 1 {
		t.Fatalf("Waiters = %d after firing one, want 1", fake.Waiters())
	}
}

func TestFakeAdvanceFiresMultipleWaiters(t *testing.T) {
	t.Parallel()
	fake := NewFake(time.Unix(0, 0))
	first := fake.After(time.Second)
	second := fake.After(2 * time.Second)

	fake.Advance(5 * time.Second)

	for name, ch := range map[string]<-chan time.Time{"first": first, "second": second} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s waiter did not fire", name)
		}
	}
}
