// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only on Advance. Safe for
// concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	// Exactly one of channel and callback is set.
	channel  chan time.Time
	callback func()
	// period is non-zero for tickers, which are rescheduled after
	// firing instead of being removed.
	period  time.Duration
	stopped bool
	fired   bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&pendingTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &pendingTimer{deadline: c.now.Add(d), callback: f}
	c.addLocked(timer)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.stopped || timer.fired {
			return false
		}
		timer.stopped = true
		return true
	}}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	timer := &pendingTimer{deadline: c.now.Add(d), channel: channel, period: d}
	c.addLocked(timer)

	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		timer.stopped = true
	}}
}

// Advance moves time forward by d and fires everything that came due,
// earliest deadline first. Channel sends never block; a full ticker
// channel drops the tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			if timer.callback != nil {
				timer.callback()
				continue
			}
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers and tickers that have
// neither fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(timer *pendingTimer) {
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}

// takeDue removes the timers due at target from the pending list,
// reschedules tickers, and returns what should fire in deadline order.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case timer.deadline.After(target):
			keep = append(keep, timer)
		default:
			due = append(due, timer)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, timer := range due {
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			keep = append(keep, timer)
		} else {
			timer.fired = true
		}
	}
	c.pending = keep
	return due
}
