// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Beacon.
//
// Configuration is loaded from a single file specified by either the
// BEACON_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. Files ending in
// .json or .jsonc are read as JSON with comments; anything else is
// YAML.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BEACON_STATE}, and ${VAR:-default} patterns are expanded.
// No environment variable overrides a config value directly.
//
// Key exports:
//
//   - [Config] -- collector, device, trip, delivery, storage, network,
//     source, status, metrics and log sections
//   - [Default] -- a Config with every default filled in
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
