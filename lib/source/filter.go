// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"time"

	"github.com/mymetro/beacon/lib/position"
)

// DefaultInterval is the report interval when none is configured.
const DefaultInterval = 300 * time.Second

// Filter decides which fixes are worth reporting. A fix passes when it
// is the first one, when Interval has elapsed since the last accepted
// fix (by fix time), when it moved at least Distance meters, or when
// the heading turned by at least Angle degrees. Zero Distance or
// Angle disables that test.
type Filter struct {
	Interval time.Duration
	Distance float64
	Angle    float64

	last     position.Position
	accepted bool
}

// Accept reports whether p passes, and if so remembers it as the new
// reference.
func (f *Filter) Accept(p position.Position) bool {
	if f.accepted && !f.due(p) {
		return false
	}
	f.last = p
	f.accepted = true
	return true
}

func (f *Filter) due(p position.Position) bool {
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	switch {
	case p.Time.Sub(f.last.Time) >= interval:
		return true
	case f.Distance > 0 && position.DistanceMeters(f.last, p) >= f.Distance:
		return true
	case f.Angle > 0 && position.BearingDelta(f.last.Bearing, p.Bearing) >= f.Angle:
		return true
	}
	return false
}

// Filtered is a Source that passes an upstream Source through a
// Filter.
type Filtered struct {
	upstream Source
	filter   *Filter
	out      chan position.Position
}

// NewFiltered wraps upstream. The filter is owned by the returned
// value from here on.
func NewFiltered(upstream Source, filter *Filter) *Filtered {
	return &Filtered{upstream: upstream, filter: filter, out: make(chan position.Position)}
}

func (f *Filtered) Positions() <-chan position.Position { return f.out }

// Run forwards accepted fixes until ctx ends.
func (f *Filtered) Run(ctx context.Context) error {
	in := f.upstream.Positions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-in:
			if !f.filter.Accept(p) {
				continue
			}
			if !send(ctx, f.out, p) {
				return ctx.Err()
			}
		}
	}
}
