// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport sends encoded position reports to the collector.
//
// A Sender performs exactly one HTTP exchange per call and never
// retries; retry policy belongs to the delivery controller. Every
// outcome other than a 2xx response is a failure reported as an
// [*Error].
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mymetro/beacon/lib/netutil"
	"github.com/mymetro/beacon/lib/protocol"
	"github.com/mymetro/beacon/lib/version"
)

// DefaultTimeout bounds one exchange, connect through response.
const DefaultTimeout = 15 * time.Second

// errorBodyLimit is how much of a rejected response is kept for logs.
const errorBodyLimit = 256

// Sender transmits one encoded request.
type Sender interface {
	Send(ctx context.Context, request protocol.Request) error
}

// Error describes a failed exchange. StatusCode is zero when no
// response arrived (dial failure, timeout, reset).
type Error struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the start of a non-2xx response body, for diagnostics.
	Body string
	Err  error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("transport: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("transport: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the exchange ran out of time.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || isTimeout(e.Err)
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// HTTP is a Sender over net/http.
type HTTP struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTP returns an HTTP sender with the given per-request timeout.
// A non-positive timeout selects DefaultTimeout. A nil client uses a
// fresh http.Client with default transport settings.
func NewHTTP(client *http.Client, timeout time.Duration) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{client: client, timeout: timeout}
}

// Send performs the request. The response body is drained so the
// connection can be reused.
func (h *HTTP) Send(ctx context.Context, request protocol.Request) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, request.URL, nil)
	if err != nil {
		return &Error{Method: method, URL: request.URL, Err: err}
	}
	httpRequest.Header.Set("User-Agent", version.UserAgent())

	response, err := h.client.Do(httpRequest)
	if err != nil {
		return &Error{Method: method, URL: request.URL, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &Error{
			Method:     method,
			URL:        request.URL,
			StatusCode: response.StatusCode,
			Body:       netutil.ErrorBody(response.Body, errorBodyLimit),
		}
	}

	// The report is accepted once the status arrives; a short or
	// interrupted body does not undo that.
	netutil.Drain(response.Body)
	return nil
}
