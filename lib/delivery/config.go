// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"fmt"
	"time"

	"github.com/mymetro/beacon/lib/position"
	"github.com/mymetro/beacon/lib/protocol"
)

// DefaultRetryDelay is the wait after a failed step.
const DefaultRetryDelay = 30 * time.Second

// Config is an immutable snapshot of the settings the controller acts
// on. Replace it with [Controller.Reconfigure].
type Config struct {
	// URL is the collector base URL.
	URL string

	// DeviceID is attached to every observation. Queued records with
	// any other id are deleted unsent.
	DeviceID string

	// Buffer persists observations before sending. Without it each
	// observation is sent once and dropped on failure.
	Buffer bool

	RetryDelay  time.Duration
	Correlation position.Correlation

	// Method and Extended select the request shape; see protocol.Encoder.
	Method   string
	Extended bool
}

func (c Config) withDefaults() Config {
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("delivery: URL is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("delivery: DeviceID is required")
	}
	return nil
}

func (c Config) encode(p position.Position) protocol.Request {
	return protocol.Encoder{Method: c.Method, Extended: c.Extended}.Encode(c.URL, p, p.Alarm)
}
