// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the device identifier Beacon reports
// under.
//
// A configured identifier always wins. Without one, the first run
// generates a random six-digit identifier and stores it in an
// identity file; later runs read it back, so a unit keeps reporting
// under the same id across restarts and upgrades.
//
// The identity file is written atomically (write to a temporary file,
// fsync, rename into place, fsync the parent directory) so a power cut
// during first boot never leaves a truncated identity behind.
package identity
