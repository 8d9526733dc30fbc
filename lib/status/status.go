// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package status carries short operator-facing messages ("Network
// online", "Send failed") out of the delivery pipeline.
package status

import (
	"log/slog"
	"sync"
	"time"
)

// Messages the pipeline emits.
const (
	ServiceCreated   = "Service created"
	ServiceDestroyed = "Service destroyed"
	LocationUpdate   = "Location update"
	NetworkOnline    = "Network online"
	NetworkOffline   = "Network offline"
	SendFailed       = "Send failed"
)

// DefaultLimit is how many messages a Log keeps.
const DefaultLimit = 20

// Sink receives status messages. Notify must not block.
type Sink interface {
	Notify(message string)
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Notify(string) {}

// Entry is one recorded message.
type Entry struct {
	Time    time.Time
	Message string
}

func (e Entry) String() string {
	return e.Time.Format(time.TimeOnly) + " - " + e.Message
}

// Log keeps the most recent messages and mirrors each one to a logger.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	now     func() time.Time
	logger  *slog.Logger
}

// NewLog returns a Log holding up to limit entries (DefaultLimit when
// limit <= 0). now defaults to time.Now.
func NewLog(limit int, now func() time.Time, logger *slog.Logger) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{limit: limit, now: now, logger: logger}
}

func (l *Log) Notify(message string) {
	entry := Entry{Time: l.now(), Message: message}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if excess := len(l.entries) - l.limit; excess > 0 {
		l.entries = append(l.entries[:0], l.entries[excess:]...)
	}
	l.mu.Unlock()

	l.logger.Info("status", "message", message)
}

// Entries returns a copy of the retained messages, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Clear drops all retained messages.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
