// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// FormatNumber renders v the way the collector's reference clients
// do: plain decimal with at least one fractional digit ("0.0",
// "144.9631") for magnitudes in [1e-3, 1e7), and "1.5E7" / "2.0E-4"
// scientific form outside that range.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	magnitude := math.Abs(v)
	if magnitude == 0 || (magnitude >= 1e-3 && magnitude < 1e7) {
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(text, ".") {
			text += ".0"
		}
		return text
	}

	mantissa, exponent, _ := strings.Cut(strconv.FormatFloat(v, 'E', -1, 64), "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	power, _ := strconv.Atoi(exponent)
	return mantissa + "E" + strconv.Itoa(power)
}

// unreserved restores the characters the reference clients send as is.
// Every '%' in QueryEscape output starts an escape, so the triplets
// cannot match across an encoded literal percent sign.
var unreserved = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escape percent-encodes a query value with %20 for spaces, leaving
// letters, digits and -_.~!*'() unescaped.
func escape(value string) string {
	return unreserved.Replace(url.QueryEscape(value))
}
