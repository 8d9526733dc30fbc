// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small network helpers shared by the transport
// and the gpsd source.
//
// Collector responses are read through [Drain] and [ErrorBody], which
// bound the read at MaxResponseSize. The collector's reply carries no
// information beyond its status code, but it must be consumed so the
// keep-alive connection returns to the pool, and a misbehaving server
// must not be able to stream forever into a tracker with little memory.
//
// [IsExpectedCloseError] classifies errors that mean "the peer hung
// up" as opposed to a real fault.
package netutil

import (
	"io"
)

// MaxResponseSize bounds every response body read: 1 MB.
const MaxResponseSize int64 = 1 << 20

// Drain reads and discards the body up to MaxResponseSize and reports
// how many bytes it consumed.
func Drain(body io.Reader) (int64, error) {
	return io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an error response body for diagnostics, truncated to
// limit bytes. Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader, limit int) string {
	if limit <= 0 || int64(limit) > MaxResponseSize {
		limit = int(MaxResponseSize)
	}
	data, _ := io.ReadAll(io.LimitReader(body, int64(limit)))
	return string(data)
}
