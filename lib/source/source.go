// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package source produces the stream of positions the delivery
// controller consumes.
//
// [GPSD] reads fixes from a gpsd daemon, [Filtered] thins them by
// time, distance and heading, and [SysfsBattery] attaches the battery
// state to each fix. Each stage is a [Source]; each runs until its
// context ends.
package source

import (
	"context"

	"github.com/mymetro/beacon/lib/position"
)

// Source is a live, unbounded stream of positions. The channel is
// never closed; consumers stop reading when their own context ends.
type Source interface {
	Positions() <-chan position.Position
}

// BatteryReader samples the battery. Implementations return an
// unknown Battery rather than an error when no battery exists.
type BatteryReader interface {
	Read() position.Battery
}

// NoBattery is a BatteryReader for mains-powered units.
type NoBattery struct{}

func (NoBattery) Read() position.Battery { return position.Battery{} }

// Channel adapts a plain channel to Source. Used by tests and by
// callers that produce positions themselves.
type Channel chan position.Position

func (c Channel) Positions() <-chan position.Position { return c }

// send delivers p unless ctx ends first.
func send(ctx context.Context, out chan<- position.Position, p position.Position) bool {
	select {
	case out <- p:
		return true
	case <-ctx.Done():
		return false
	}
}
