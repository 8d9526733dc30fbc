// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"fmt"
	"testing"
	"time"
)

func TestLogKeepsMostRecent(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	log := NewLog(0, func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}, nil)

	for i := range DefaultLimit + 5 {
		log.Notify(fmt.Sprintf("message %d", i))
	}

	entries := log.Entries()
	if len(entries) != DefaultLimit {
		t.Fatalf("len = %d, want %d", len(entries), DefaultLimit)
	}
	if entries[0].Message != "message 5" {
		t.Fatalf("oldest = %q, want %q", entries[0].Message, "message 5")
	}
	if last := entries[len(entries)-1].Message; last != "message 24" {
		t.Fatalf("newest = %q, want %q", last, "message 24")
	}
}

func TestEntryString(t *testing.T) {
	entry := Entry{Time: time.Date(2026, 1, 1, 14, 3, 9, 0, time.UTC), Message: NetworkOnline}
	if got, want := entry.String(), "14:03:09 - Network online"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLogClearAndCopy(t *testing.T) {
	log := NewLog(3, nil, nil)
	log.Notify(SendFailed)

	entries := log.Entries()
	entries[0].Message = "mutated"
	if got := log.Entries()[0].Message; got != SendFailed {
		t.Fatalf("Entries shares storage: got %q", got)
	}

	log.Clear()
	if n := len(log.Entries()); n != 0 {
		t.Fatalf("len after Clear = %d, want 0", n)
	}
}
