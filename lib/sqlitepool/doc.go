// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen SQLite connection pools with the
// pragmas Beacon's durable position queue depends on.
//
// Every connection runs in WAL mode with a busy timeout. The
// synchronous level is chosen by [Config].Durability: [DurabilityFull]
// fsyncs the WAL on every commit, so a committed insert survives power
// loss, not only a process crash. Trackers lose power with the
// vehicle, so the queue always opens with DurabilityFull; NORMAL is
// kept for scratch databases in tests.
//
// Connections are not safe for concurrent use. Take one, use it, and
// Put it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
