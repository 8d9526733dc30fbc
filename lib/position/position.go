// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package position defines the observation Beacon buffers and reports.
package position

import (
	"fmt"
	"math"
	"time"
)

// KnotsPerMeterPerSecond converts m/s (what receivers report) into
// knots (what the collector expects).
const KnotsPerMeterPerSecond = 1.943844

// Battery is the battery snapshot taken alongside a fix. Level is a
// percentage in [0, 100] and meaningful only when Known is set.
type Battery struct {
	Level    float64
	Charging bool
	Known    bool
}

// Correlation ties an observation to the trip the vehicle is running.
// All fields are optional.
type Correlation struct {
	TripID  string
	RouteID string
	BlockID string
}

// Position is one timestamped fix plus battery state.
//
// ID is assigned by the queue on insert and is zero before that.
// DeviceID and Correlation are attached by the delivery controller;
// everything else comes from the source and is not modified after
// construction.
type Position struct {
	ID        int64
	DeviceID  string
	Time      time.Time
	Latitude  float64
	Longitude float64
	// Speed in knots.
	Speed float64
	// Bearing in degrees clockwise from true north.
	Bearing float64
	// Altitude in meters above the WGS84 ellipsoid.
	Altitude float64
	// Accuracy is the horizontal accuracy radius in meters.
	Accuracy float64
	Battery  Battery
	Correlation
	// Alarm is a free-text alarm raised with this fix, if any.
	Alarm string
}

// WithIdentity returns a copy attributed to deviceID and tagged with
// the correlation identifiers.
func (p Position) WithIdentity(deviceID string, correlation Correlation) Position {
	p.DeviceID = deviceID
	p.Correlation = correlation
	return p
}

// Validate rejects fixes that cannot be reported.
func (p Position) Validate() error {
	switch {
	case p.Time.IsZero():
		return fmt.Errorf("position: missing time")
	case math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90:
		return fmt.Errorf("position: latitude %v out of range", p.Latitude)
	case math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180:
		return fmt.Errorf("position: longitude %v out of range", p.Longitude)
	case p.Battery.Known && (p.Battery.Level < 0 || p.Battery.Level > 100):
		return fmt.Errorf("position: battery level %v out of range", p.Battery.Level)
	}
	return nil
}

// String is the short form used in log lines.
func (p Position) String() string {
	return fmt.Sprintf("(id:%d time:%d lat:%v lon:%v)", p.ID, p.Time.Unix(), p.Latitude, p.Longitude)
}

// DistanceMeters is the great-circle distance between two fixes.
func DistanceMeters(a, b Position) float64 {
	const earthRadius = 6371008.8
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	deltaLat := lat2 - lat1
	deltaLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BearingDelta is the smallest angle between two bearings, in [0, 180].
func BearingDelta(a, b float64) float64 {
	delta := math.Mod(math.Abs(a-b), 360)
	if delta > 180 {
		delta = 360 - delta
	}
	return delta
}
