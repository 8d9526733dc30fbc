// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by every Beacon
// component that waits: the delivery controller's retry timer, the
// network monitor's poll ticker, and the gpsd reconnect backoff.
//
// Production code receives Real(). Tests receive Fake(start), whose
// time only moves when Advance is called:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	controller := delivery.New(config, delivery.Dependencies{Clock: fakeClock, ...})
//	// ... drive the controller into RetryScheduled ...
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(30 * time.Second)
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
