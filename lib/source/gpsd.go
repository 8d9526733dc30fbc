// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/netutil"
	"github.com/mymetro/beacon/lib/position"
)

// DefaultGPSDAddress is where gpsd listens on a stock install.
const DefaultGPSDAddress = "127.0.0.1:2947"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// watchCommand asks gpsd to stream JSON reports.
	watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"
)

// GPSD reads TPV reports from a gpsd daemon and emits one position per
// report that carries a 2D or 3D fix. It reconnects with exponential
// backoff whenever the connection drops.
type GPSD struct {
	address string
	clock   clock.Clock
	battery BatteryReader
	logger  *slog.Logger
	out     chan position.Position
}

// NewGPSD returns a source for the daemon at address. A nil battery
// reports unknown battery state.
func NewGPSD(address string, clk clock.Clock, battery BatteryReader, logger *slog.Logger) *GPSD {
	if address == "" {
		address = DefaultGPSDAddress
	}
	if battery == nil {
		battery = NoBattery{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GPSD{
		address: address,
		clock:   clk,
		battery: battery,
		logger:  logger,
		out:     make(chan position.Position),
	}
}

func (g *GPSD) Positions() <-chan position.Position { return g.out }

// Run connects and streams until ctx ends, then returns ctx.Err().
func (g *GPSD) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		connected, err := g.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = initialBackoff
		}
		if err != nil && !netutil.IsExpectedCloseError(err) {
			g.logger.Warn("gpsd connection failed", "address", g.address, "error", err, "retry_in", backoff)
		} else {
			g.logger.Info("gpsd connection closed", "address", g.address, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// session runs one connection. connected reports whether the dial
// succeeded, which resets the backoff.
func (g *GPSD) session(ctx context.Context) (connected bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", g.address)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return true, fmt.Errorf("sending WATCH: %w", err)
	}
	g.logger.Info("gpsd connected", "address", g.address)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		p, ok, err := parseReport(scanner.Bytes(), g.clock)
		if err != nil {
			g.logger.Debug("skipping malformed gpsd report", "error", err)
			continue
		}
		if !ok {
			continue
		}
		p.Battery = g.battery.Read()
		if !send(ctx, g.out, p) {
			return true, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return true, err
	}
	return true, nil
}

// tpv is the subset of gpsd's time-position-velocity report we use.
// Optional fields are pointers so "absent" and "zero" differ.
type tpv struct {
	Class  string   `json:"class"`
	Mode   int      `json:"mode"`
	Time   string   `json:"time"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltHAE *float64 `json:"altHAE"`
	Speed  *float64 `json:"speed"`
	Track  *float64 `json:"track"`
	Eph    *float64 `json:"eph"`
	Epx    *float64 `json:"epx"`
	Epy    *float64 `json:"epy"`
}

// parseReport turns one gpsd JSON line into a position. ok is false
// for reports that are not fixes (other classes, mode below 2, missing
// coordinates).
func parseReport(line []byte, clk clock.Clock) (position.Position, bool, error) {
	var report tpv
	if err := json.Unmarshal(line, &report); err != nil {
		return position.Position{}, false, err
	}
	if report.Class != "TPV" || report.Mode < 2 || report.Lat == nil || report.Lon == nil {
		return position.Position{}, false, nil
	}

	fixTime := clk.Now()
	if report.Time != "" {
		parsed, err := time.Parse(time.RFC3339Nano, report.Time)
		if err != nil {
			return position.Position{}, false, fmt.Errorf("parsing time %q: %w", report.Time, err)
		}
		fixTime = parsed
	}

	p := position.Position{
		Time:      fixTime,
		Latitude:  *report.Lat,
		Longitude: *report.Lon,
		Speed:     value(report.Speed) * position.KnotsPerMeterPerSecond,
		Bearing:   value(report.Track),
	}
	switch {
	case report.AltHAE != nil:
		p.Altitude = *report.AltHAE
	case report.Alt != nil:
		p.Altitude = *report.Alt
	}
	switch {
	case report.Eph != nil:
		p.Accuracy = *report.Eph
	case report.Epx != nil || report.Epy != nil:
		p.Accuracy = math.Max(value(report.Epx), value(report.Epy))
	}
	return p, true, p.Validate()
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
