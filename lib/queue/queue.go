// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue is the durable FIFO of positions awaiting delivery.
//
// Every record gets a sequence id on insert. Ids increase strictly and
// are never reused, even after the record is deleted or the process
// restarts, so "oldest" always means "smallest id". A record is
// visible to PeekOldest from the moment Insert returns until Delete
// returns; nothing else removes it.
//
// Implementations block the calling goroutine and add no locking of
// their own beyond what the storage engine does. The delivery
// controller supplies asynchrony and guarantees at most one operation
// in flight. Len is the exception: metrics scrapes call it from their
// own goroutine, concurrently with that operation, so every backend
// must allow it.
//
// Two backends exist: [SQLite] for a tracker's local disk and [Redis]
// for gateway deployments where a persistent Redis is the store.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymetro/beacon/lib/position"
)

// ErrStorage wraps every failure of the underlying store. Callers
// treat it as transient and retry.
var ErrStorage = errors.New("queue storage failure")

// Queue is a durable FIFO of positions.
type Queue interface {
	// Insert persists p and returns its sequence id. On success the
	// record is durable.
	Insert(ctx context.Context, p position.Position) (int64, error)

	// PeekOldest returns the record with the smallest id, with ID
	// set, or nil when the queue is empty. It never modifies the
	// queue.
	PeekOldest(ctx context.Context) (*position.Position, error)

	// Delete removes the record with the given id. Deleting an id
	// that is not present succeeds.
	Delete(ctx context.Context, id int64) error

	// Len counts pending records. It may run concurrently with any
	// other call.
	Len(ctx context.Context) (int, error)

	Close() error
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
