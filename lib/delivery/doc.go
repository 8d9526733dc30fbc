// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery is the store-and-forward pipeline: it persists every
// observation in a [queue.Queue] and forwards the queue to the
// collector one record at a time, oldest first, deleting a record only
// after the collector accepted it.
//
// A single goroutine ([Controller.Run]) owns all state. Queue and
// transport calls run on short-lived goroutines and post their
// completions back to the controller's inbox, so the state machine
// never blocks on I/O and never sees two of its own operations race.
// Two lanes bound the concurrency:
//
//   - the queue lane: insert, peek and delete share it, one operation
//     in flight, the rest waiting in submission order;
//   - the transport lane: one request in flight.
//
// The drain cycle walks these states:
//
//	Idle ──read──▶ Reading ──▶ Deciding ─┬─▶ Sending ──ok──▶ Deleting ──ok──▶ Reading
//	                  │                  ├─▶ Deleting (record from another device)
//	                  │                  └─▶ WaitingForData (queue empty)
//	                  └── any failure ──▶ RetryScheduled ──timer, online──▶ Reading
//
// Requests to read while a cycle is already in flight are coalesced.
// A retry timer that fires after the pipeline resumed some other way
// is ignored. While offline a fired retry leaves the pipeline dormant
// until the network returns.
//
// With buffering off (Config.Buffer false) observations skip the queue
// and go straight to the transport lane. A failed send is reported and
// dropped.
//
// Delivery is at-least-once: a crash between the collector accepting a
// record and the delete completing resends that record on restart.
package delivery
