// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon is the on-vehicle location reporter. It reads fixes from
// gpsd, thins them with the report filter, queues every accepted fix
// on local storage, and forwards the queue oldest-first to the
// collector whenever the network is reachable.
//
// # Configuration
//
// Beacon reads a YAML (or JSONC) file named by --config or the
// BEACON_CONFIG environment variable. Only collector.url is required;
// see [config.Config] for every setting and its default.
//
// The file is watched while Beacon runs. Collector, device, trip and
// delivery settings from a valid edit apply to the next operation the
// controller starts; other sections need a restart.
//
// # Identity
//
// With no device.id configured, Beacon generates a six-digit id on
// first start and keeps it in device.id_file. Queued positions carry
// the id they were recorded under; records from a previous identity
// are deleted unsent.
//
// # HTTP endpoints
//
// When metrics.address is set, Beacon serves:
//
//   - GET /metrics: Prometheus metrics
//   - GET /healthz: liveness
//   - GET /status: controller snapshot and the recent status messages
//   - DELETE /status: clears the status messages
//
// # Shutdown
//
// SIGINT or SIGTERM stops the controller. A send or queue operation
// already in progress is allowed to finish before the queue is closed;
// a record whose delivery was not confirmed stays queued for the next
// start.
package main
