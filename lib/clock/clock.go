// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations Beacon depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel a call that has not happened yet.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on the returned Ticker's C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. Returns false if it already ran or was
// already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C (capacity 1; slow readers miss
// ticks rather than queueing them).
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
