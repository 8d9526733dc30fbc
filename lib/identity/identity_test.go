// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestGenerateRange(t *testing.T) {
	for range 1000 {
		id := Generate()
		n, err := strconv.Atoi(id)
		if err != nil {
			t.Fatalf("Generate() = %q, not a number", id)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("Generate() = %d, outside [100000, 999999]", n)
		}
	}
}

func TestResolveConfiguredWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	resolver := Resolver{Path: path, Generate: func() string { t.Fatal("generated despite configured id"); return "" }}

	got, err := resolver.Resolve("bus-17")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "bus-17" {
		t.Fatalf("got %q, want %q", got, "bus-17")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("identity file written for a configured id: %v", err)
	}
}

func TestResolveGeneratesOnceAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	resolver := Resolver{
		Path:     path,
		Generate: func() string { calls++; return "482913" },
		Now:      func() time.Time { return created },
	}

	first, err := resolver.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := resolver.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != "482913" || second != first {
		t.Fatalf("got %q then %q, want 482913 twice", first, second)
	}
	if calls != 1 {
		t.Fatalf("Generate called %d times, want 1", calls)
	}

	record, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if record.DeviceID != "482913" || !record.Created.Equal(created) {
		t.Fatalf("record = %+v", record)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestResolveRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := (Resolver{Path: path}).Resolve(""); err == nil {
		t.Fatal("Resolve succeeded over a corrupt identity file")
	}
}

func TestResolveNeedsPath(t *testing.T) {
	if _, err := (Resolver{}).Resolve(""); err == nil {
		t.Fatal("Resolve succeeded with neither id nor path")
	}
}

func TestReadMissingWrapsNotExist(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want os.ErrNotExist", err)
	}
}

func TestWriteMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := Write(path, Record{DeviceID: "1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Fatalf("mode = %o, want 600", mode)
	}
}
