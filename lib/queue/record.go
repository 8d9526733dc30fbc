// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"time"

	"github.com/mymetro/beacon/lib/codec"
	"github.com/mymetro/beacon/lib/position"
)

// recordVersion is bumped whenever storedPosition changes shape in a
// way old readers cannot decode.
const recordVersion = 1

// storedPosition is the persisted form of a position. Integer keys keep
// records compact; records written by older builds stay readable.
type storedPosition struct {
	Version         int     `cbor:"1,keyasint"`
	ID              int64   `cbor:"2,keyasint,omitempty"`
	DeviceID        string  `cbor:"3,keyasint"`
	TimeMillis      int64   `cbor:"4,keyasint"`
	Latitude        float64 `cbor:"5,keyasint"`
	Longitude       float64 `cbor:"6,keyasint"`
	Speed           float64 `cbor:"7,keyasint"`
	Bearing         float64 `cbor:"8,keyasint"`
	Altitude        float64 `cbor:"9,keyasint"`
	Accuracy        float64 `cbor:"10,keyasint"`
	BatteryLevel    float64 `cbor:"11,keyasint"`
	BatteryCharging bool    `cbor:"12,keyasint,omitempty"`
	BatteryKnown    bool    `cbor:"13,keyasint,omitempty"`
	TripID          string  `cbor:"14,keyasint,omitempty"`
	RouteID         string  `cbor:"15,keyasint,omitempty"`
	BlockID         string  `cbor:"16,keyasint,omitempty"`
	Alarm           string  `cbor:"17,keyasint,omitempty"`
}

func encodeRecord(id int64, p position.Position) ([]byte, error) {
	return codec.Marshal(storedPosition{
		Version:         recordVersion,
		ID:              id,
		DeviceID:        p.DeviceID,
		TimeMillis:      p.Time.UnixMilli(),
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Speed:           p.Speed,
		Bearing:         p.Bearing,
		Altitude:        p.Altitude,
		Accuracy:        p.Accuracy,
		BatteryLevel:    p.Battery.Level,
		BatteryCharging: p.Battery.Charging,
		BatteryKnown:    p.Battery.Known,
		TripID:          p.TripID,
		RouteID:         p.RouteID,
		BlockID:         p.BlockID,
		Alarm:           p.Alarm,
	})
}

func decodeRecord(data []byte) (position.Position, int64, error) {
	var stored storedPosition
	if err := codec.Unmarshal(data, &stored); err != nil {
		diagnostic, _ := codec.Diagnose(data)
		return position.Position{}, 0, fmt.Errorf("decoding record %s: %w", diagnostic, err)
	}
	if stored.Version > recordVersion {
		return position.Position{}, 0, fmt.Errorf("record version %d is newer than supported version %d", stored.Version, recordVersion)
	}
	return position.Position{
		ID:        stored.ID,
		DeviceID:  stored.DeviceID,
		Time:      time.UnixMilli(stored.TimeMillis),
		Latitude:  stored.Latitude,
		Longitude: stored.Longitude,
		Speed:     stored.Speed,
		Bearing:   stored.Bearing,
		Altitude:  stored.Altitude,
		Accuracy:  stored.Accuracy,
		Battery: position.Battery{
			Level:    stored.BatteryLevel,
			Charging: stored.BatteryCharging,
			Known:    stored.BatteryKnown,
		},
		Correlation: position.Correlation{
			TripID:  stored.TripID,
			RouteID: stored.RouteID,
			BlockID: stored.BlockID,
		},
		Alarm: stored.Alarm,
	}, stored.ID, nil
}
