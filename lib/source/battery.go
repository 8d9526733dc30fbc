// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mymetro/beacon/lib/position"
)

// DefaultPowerSupplyDir is the Linux power-supply class directory.
const DefaultPowerSupplyDir = "/sys/class/power_supply"

// SysfsBattery reads the first supply of type "Battery" under Dir.
type SysfsBattery struct {
	Dir    string
	Logger *slog.Logger
}

func (b SysfsBattery) Read() position.Battery {
	dir := b.Dir
	if dir == "" {
		dir = DefaultPowerSupplyDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.debug("reading power supplies", "dir", dir, "error", err)
		return position.Battery{}
	}
	for _, entry := range entries {
		supply := filepath.Join(dir, entry.Name())
		if readAttribute(supply, "type") != "Battery" {
			continue
		}
		capacity, err := strconv.ParseFloat(readAttribute(supply, "capacity"), 64)
		if err != nil || capacity < 0 || capacity > 100 {
			b.debug("unusable battery capacity", "supply", supply, "error", err)
			continue
		}
		status := readAttribute(supply, "status")
		return position.Battery{
			Level:    capacity,
			Charging: status == "Charging" || status == "Full",
			Known:    true,
		}
	}
	return position.Battery{}
}

func (b SysfsBattery) debug(msg string, args ...any) {
	if b.Logger != nil {
		b.Logger.Debug(msg, args...)
	}
}

func readAttribute(supply, name string) string {
	data, err := os.ReadFile(filepath.Join(supply, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
