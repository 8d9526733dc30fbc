// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/mymetro/beacon/lib/config"
	"github.com/mymetro/beacon/lib/delivery"
	"github.com/mymetro/beacon/lib/identity"
	"github.com/mymetro/beacon/lib/position"
)

// reconfigurer is the part of the controller a reload drives.
type reconfigurer interface {
	Reconfigure(delivery.Config) error
}

func resolveDevice(cfg *config.Config, logger *slog.Logger) (string, error) {
	return identity.Resolver{Path: cfg.Device.IDFile, Logger: logger}.Resolve(cfg.Device.ID)
}

func deliveryConfig(cfg *config.Config, deviceID string) delivery.Config {
	return delivery.Config{
		URL:        cfg.Collector.URL,
		DeviceID:   deviceID,
		Buffer:     cfg.Delivery.Buffer,
		RetryDelay: cfg.Delivery.RetryDelay,
		Correlation: position.Correlation{
			TripID:  cfg.Trip.TripID,
			RouteID: cfg.Trip.RouteID,
			BlockID: cfg.Trip.BlockID,
		},
		Method:   cfg.Collector.Method,
		Extended: cfg.Collector.Extended,
	}
}

// applyChanges hands each reloaded config to the controller until ctx
// is done. Collector, device, trip and delivery settings apply live;
// changes to anything else are logged and wait for a restart.
func applyChanges(ctx context.Context, changes <-chan *config.Config, current *config.Config, controller reconfigurer, logger *slog.Logger) error {
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-changes:
		}

		deviceID, err := resolveDevice(next, logger)
		if err != nil {
			logger.Warn("ignoring config change", "error", err)
			continue
		}
		if err := controller.Reconfigure(deliveryConfig(next, deviceID)); err != nil {
			logger.Warn("ignoring config change", "error", err)
			continue
		}
		if pending := restartRequired(current, next); len(pending) > 0 {
			logger.Warn("config sections changed that apply only after a restart", "sections", pending)
		}
		current = next
	}
}

// restartRequired names the changed sections that the running process
// does not pick up.
func restartRequired(current, next *config.Config) []string {
	var sections []string
	if current.Collector.Timeout != next.Collector.Timeout {
		sections = append(sections, "collector.timeout")
	}
	if current.Storage != next.Storage {
		sections = append(sections, "storage")
	}
	if current.Network != next.Network {
		sections = append(sections, "network")
	}
	if current.Source != next.Source {
		sections = append(sections, "source")
	}
	if current.Status != next.Status {
		sections = append(sections, "status")
	}
	if current.Metrics != next.Metrics {
		sections = append(sections, "metrics")
	}
	if current.Log != next.Log {
		sections = append(sections, "log")
	}
	return sections
}
