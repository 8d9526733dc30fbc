// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds Beacon's CBOR configuration for on-disk and
// in-Redis queue payloads.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// record always produces the same bytes, which keeps queue payloads
// comparable in tests and in the Redis sorted set, where the payload
// is the set member.
//
// Types stored through this package carry `cbor` struct tags with
// short integer-like keys and are versioned by the caller; unknown
// fields are ignored on decode so older binaries can read records
// written by newer ones.
package codec
