// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/position"
	"github.com/mymetro/beacon/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestParseReport(t *testing.T) {
	fake := clock.Fake(epoch)

	tests := []struct {
		name   string
		line   string
		wantOK bool
		check  func(t *testing.T, p position.Position)
	}{
		{
			name:   "3d fix",
			line:   `{"class":"TPV","mode":3,"time":"2026-03-01T07:59:58.500Z","lat":-37.8136,"lon":144.9631,"altHAE":31.5,"alt":30,"speed":10,"track":271.5,"eph":4.2}`,
			wantOK: true,
			check: func(t *testing.T, p position.Position) {
				if want := time.Date(2026, 3, 1, 7, 59, 58, 500_000_000, time.UTC); !p.Time.Equal(want) {
					t.Errorf("Time = %v, want %v", p.Time, want)
				}
				if p.Latitude != -37.8136 || p.Longitude != 144.9631 {
					t.Errorf("lat/lon = %v/%v", p.Latitude, p.Longitude)
				}
				if math.Abs(p.Speed-19.43844) > 1e-9 {
					t.Errorf("Speed = %v knots, want 19.43844", p.Speed)
				}
				if p.Bearing != 271.5 || p.Altitude != 31.5 || p.Accuracy != 4.2 {
					t.Errorf("bearing/altitude/accuracy = %v/%v/%v", p.Bearing, p.Altitude, p.Accuracy)
				}
			},
		},
		{
			name:   "2d fix without time uses clock",
			line:   `{"class":"TPV","mode":2,"lat":1,"lon":2,"alt":12,"epx":3,"epy":5}`,
			wantOK: true,
			check: func(t *testing.T, p position.Position) {
				if !p.Time.Equal(epoch) {
					t.Errorf("Time = %v, want clock time %v", p.Time, epoch)
				}
				if p.Altitude != 12 || p.Accuracy != 5 || p.Speed != 0 {
					t.Errorf("altitude/accuracy/speed = %v/%v/%v", p.Altitude, p.Accuracy, p.Speed)
				}
			},
		},
		{name: "no fix", line: `{"class":"TPV","mode":1,"lat":1,"lon":2}`},
		{name: "missing coordinates", line: `{"class":"TPV","mode":3}`},
		{name: "sky report", line: `{"class":"SKY","satellites":[]}`},
		{name: "version banner", line: `{"class":"VERSION","release":"3.25"}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, ok, err := parseReport([]byte(test.line), fake)
			if err != nil {
				t.Fatalf("parseReport: %v", err)
			}
			if ok != test.wantOK {
				t.Fatalf("ok = %v, want %v", ok, test.wantOK)
			}
			if test.check != nil {
				test.check(t, p)
			}
		})
	}
}

func TestParseReportErrors(t *testing.T) {
	fake := clock.Fake(epoch)
	for _, line := range []string{
		`not json`,
		`{"class":"TPV","mode":3,"time":"yesterday","lat":1,"lon":2}`,
		`{"class":"TPV","mode":3,"lat":91,"lon":2}`,
	} {
		if _, _, err := parseReport([]byte(line), fake); err == nil {
			t.Errorf("parseReport(%s) succeeded, want error", line)
		}
	}
}

// fakeGPSD accepts connections and, for each, checks the WATCH
// command, writes the next script of lines, and hangs up.
func fakeGPSD(t *testing.T, scripts ...[]string) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for _, script := range scripts {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			reader := bufio.NewReader(conn)
			command, err := reader.ReadString('\n')
			if err != nil || command != watchCommand {
				t.Errorf("watch command = %q, %v", command, err)
			}
			for _, line := range script {
				conn.Write([]byte(line + "\n"))
			}
			conn.Close()
		}
	}()
	return listener.Addr().String()
}

type staticBattery position.Battery

func (b staticBattery) Read() position.Battery { return position.Battery(b) }

func TestGPSDStreamsAndReconnects(t *testing.T) {
	address := fakeGPSD(t,
		[]string{
			`{"class":"VERSION","release":"3.25"}`,
			`{"class":"TPV","mode":1}`,
			`{"class":"TPV","mode":3,"time":"2026-03-01T08:00:00Z","lat":10,"lon":20}`,
		},
		[]string{
			`{"class":"TPV","mode":3,"time":"2026-03-01T08:00:05Z","lat":11,"lon":21}`,
		},
	)
	fake := clock.Fake(epoch)
	battery := staticBattery{Level: 64, Known: true}
	gpsd := NewGPSD(address, fake, battery, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gpsd.Run(ctx) }()

	first := testutil.RequireReceive(t, gpsd.Positions(), 5*time.Second, "first fix")
	if first.Latitude != 10 || first.Longitude != 20 {
		t.Fatalf("first fix = %v", first)
	}
	if first.Battery != position.Battery(battery) {
		t.Fatalf("Battery = %+v, want %+v", first.Battery, battery)
	}

	// The server hung up; the source waits out its backoff on the
	// injected clock before redialing.
	fake.WaitForTimers(1)
	fake.Advance(initialBackoff)

	second := testutil.RequireReceive(t, gpsd.Positions(), 5*time.Second, "fix after reconnect")
	if second.Latitude != 11 {
		t.Fatalf("second fix = %v", second)
	}

	fake.WaitForTimers(1)
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run exit"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestGPSDBackoffGrows(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	fake := clock.Fake(epoch)
	gpsd := NewGPSD(address, fake, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gpsd.Run(ctx)

	// Each failed dial waits on a timer. Advancing by less than the
	// doubled backoff must not trigger the next attempt.
	fake.WaitForTimers(1)
	fake.Advance(initialBackoff)
	fake.WaitForTimers(1)
	fake.Advance(initialBackoff)
	if fake.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want the 2s backoff still pending", fake.PendingCount())
	}
	fake.Advance(initialBackoff)
	fake.WaitForTimers(1)
}
