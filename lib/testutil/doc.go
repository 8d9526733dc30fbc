// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds channel helpers shared by Beacon tests.
//
// [RequireReceive] and [RequireClosed] are the only places tests wait
// on the wall clock, and only as a hang guard: the timeout never
// decides the outcome of a passing test. Everything else that waits
// goes through lib/clock's fake.
package testutil
