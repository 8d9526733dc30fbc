// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package netmonitor turns a polled reachability probe into a stream
// of online/offline transitions.
//
// The monitor samples its probe once when constructed, so Online has
// a meaningful value before Run starts. Run then polls on the injected
// clock and sends on Transitions only when the sampled value differs
// from the last one: a consumer never sees two identical values in a
// row, and never sees the initial state as a transition.
package netmonitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mymetro/beacon/lib/clock"
)

// DefaultPollInterval is how often Run samples the probe when the
// caller does not choose.
const DefaultPollInterval = 5 * time.Second

// Probe reports whether the collector is plausibly reachable. Probes
// must return promptly; a probe that does I/O bounds it with ctx.
type Probe interface {
	Reachable(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Reachable(ctx context.Context) bool { return f(ctx) }

// Monitor polls a Probe and publishes changes.
type Monitor struct {
	probe       Probe
	clock       clock.Clock
	interval    time.Duration
	logger      *slog.Logger
	online      atomic.Bool
	transitions chan bool
}

// New samples probe once and returns a monitor reporting that state.
// A non-positive interval selects DefaultPollInterval.
func New(ctx context.Context, probe Probe, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	monitor := &Monitor{
		probe:       probe,
		clock:       clk,
		interval:    interval,
		logger:      logger,
		transitions: make(chan bool),
	}
	monitor.online.Store(probe.Reachable(ctx))
	monitor.logger.Info("network monitor started", "online", monitor.online.Load(), "interval", interval)
	return monitor
}

// Online returns the most recently sampled state.
func (m *Monitor) Online() bool { return m.online.Load() }

// Transitions delivers each change of state. The channel is never
// closed; stop reading when the context given to Run is done.
func (m *Monitor) Transitions() <-chan bool { return m.transitions }

// Run polls until ctx is done and returns ctx.Err(). A transition is
// held until the consumer takes it, so consumers see changes in order.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		online := m.probe.Reachable(ctx)
		if online == m.online.Load() {
			continue
		}
		m.online.Store(online)
		m.logger.Info("network state changed", "online", online)

		select {
		case m.transitions <- online:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
