// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Record is the content of the identity file.
type Record struct {
	DeviceID string    `json:"device_id"`
	Created  time.Time `json:"created"`
}

// Resolver resolves the device identifier. The zero value needs only
// Path; Generate and Now default to a random six-digit id and
// time.Now.
type Resolver struct {
	// Path is the identity file. Its directory must exist.
	Path string

	Generate func() string
	Now      func() time.Time
	Logger   *slog.Logger
}

// Generate returns a random identifier in [100000, 999999].
func Generate() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// Resolve returns configured when it is non-empty. Otherwise it reads
// the identity file, creating it with a fresh identifier if it does
// not exist.
func (r Resolver) Resolve(configured string) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if configured != "" {
		return configured, nil
	}
	if r.Path == "" {
		return "", fmt.Errorf("identity: no device id configured and no identity file path")
	}

	record, err := Read(r.Path)
	if err == nil {
		return record.DeviceID, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	generate := r.Generate
	if generate == nil {
		generate = Generate
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	record = Record{DeviceID: generate(), Created: now().UTC()}
	if err := Write(r.Path, record); err != nil {
		return "", err
	}
	logger.Info("generated device identity", "device_id", record.DeviceID, "path", r.Path)
	return record.DeviceID, nil
}

// Read parses the identity file. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("identity: reading %s: %w", path, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("identity: parsing %s: %w", path, err)
	}
	if record.DeviceID == "" {
		return Record{}, fmt.Errorf("identity: %s has an empty device_id", path)
	}
	return record, nil
}

// Write atomically replaces the identity file. The file is created
// with mode 0600.
func Write(path string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshaling: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("identity: creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("identity: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("identity: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("identity: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("identity: renaming into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
