// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol encodes positions into collector requests using the
// OsmAnd-style query protocol:
//
//	GET {base}?id=..&timestamp=..&lat=..&lon=..&speed=..&bearing=..&altitude=..&accuracy=..&batt=..[&alarm=..]
//
// Parameter order, the presence rule for alarm, and the number format
// are fixed by deployed collectors and must not change. Encoding is
// pure: no clock, no I/O, same input same output.
package protocol
