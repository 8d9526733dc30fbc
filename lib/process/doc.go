// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handler for Beacon
// binaries: main calls run() and hands any error to [Fatal], which
// writes it to stderr without depending on the structured logger
// (run may fail before the logger exists).
package process
