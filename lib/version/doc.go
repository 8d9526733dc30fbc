// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for Beacon binaries.
//
// The variables are injected with -ldflags -X at build time:
//
//	go build -ldflags "-X github.com/mymetro/beacon/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/beacon
//
// Development builds report "0.1.0-dev (unknown, unknown)".
package version
