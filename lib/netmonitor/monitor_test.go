// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package netmonitor

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/testutil"
)

// fakeProbe returns a settable value and reports each call on calls.
type fakeProbe struct {
	online atomic.Bool
	calls  chan struct{}
}

func newFakeProbe(online bool) *fakeProbe {
	probe := &fakeProbe{calls: make(chan struct{}, 16)}
	probe.online.Store(online)
	return probe
}

func (p *fakeProbe) Reachable(context.Context) bool {
	online := p.online.Load()
	p.calls <- struct{}{}
	return online
}

const interval = 5 * time.Second

func startMonitor(t *testing.T, probe *fakeProbe) (*Monitor, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	monitor := New(context.Background(), probe, fake, interval, nil)
	testutil.RequireReceive(t, probe.calls, time.Second, "initial sample")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "Run exit"); !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})
	fake.WaitForTimers(1)
	return monitor, fake
}

func TestInitialStateIsNotATransition(t *testing.T) {
	probe := newFakeProbe(true)
	monitor, _ := startMonitor(t, probe)
	if !monitor.Online() {
		t.Fatal("Online() = false, want true from initial sample")
	}
	testutil.RequireNoReceive(t, monitor.Transitions(), "initial state")
}

func TestTransitionsOnlyOnChange(t *testing.T) {
	probe := newFakeProbe(true)
	monitor, fake := startMonitor(t, probe)

	// Unchanged poll.
	fake.Advance(interval)
	testutil.RequireReceive(t, probe.calls, 5*time.Second, "first poll")

	probe.online.Store(false)
	fake.Advance(interval)
	if got := testutil.RequireReceive(t, monitor.Transitions(), 5*time.Second, "offline transition"); got {
		t.Fatalf("got transition %v, want false", got)
	}
	testutil.RequireReceive(t, probe.calls, time.Second, "second poll")
	if monitor.Online() {
		t.Fatal("Online() = true after offline transition")
	}

	// Two polls that stay offline, then back online: the only value
	// delivered is true.
	fake.Advance(interval)
	testutil.RequireReceive(t, probe.calls, 5*time.Second, "third poll")
	fake.Advance(interval)
	testutil.RequireReceive(t, probe.calls, 5*time.Second, "fourth poll")

	probe.online.Store(true)
	fake.Advance(interval)
	if got := testutil.RequireReceive(t, monitor.Transitions(), 5*time.Second, "online transition"); !got {
		t.Fatalf("got transition %v, want true", got)
	}
}

func TestInterfaceProbe(t *testing.T) {
	global := &net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)}
	linkLocal := &net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}
	loopback := &net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}

	tests := []struct {
		name  string
		links []link
		want  bool
	}{
		{"none", nil, false},
		{"loopback only", []link{{flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{loopback}}}, false},
		{"down", []link{{flags: 0, addrs: []net.Addr{global}}}, false},
		{"link-local only", []link{{flags: net.FlagUp, addrs: []net.Addr{linkLocal}}}, false},
		{"up with address", []link{
			{flags: net.FlagUp | net.FlagLoopback, addrs: []net.Addr{loopback}},
			{flags: net.FlagUp, addrs: []net.Addr{linkLocal, global}},
		}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			probe := &InterfaceProbe{links: func() ([]link, error) { return test.links, nil }}
			if got := probe.Reachable(context.Background()); got != test.want {
				t.Fatalf("Reachable() = %v, want %v", got, test.want)
			}
		})
	}

	failing := &InterfaceProbe{links: func() ([]link, error) { return nil, errors.New("boom") }}
	if failing.Reachable(context.Background()) {
		t.Fatal("Reachable() = true when listing interfaces failed")
	}
}

func TestDialProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := listener.Addr().String()

	probe := DialProbe{Address: address, Timeout: time.Second}
	if !probe.Reachable(context.Background()) {
		t.Fatal("Reachable() = false with a listener")
	}

	listener.Close()
	if probe.Reachable(context.Background()) {
		t.Fatal("Reachable() = true after the listener closed")
	}
}

func TestCollectorAddress(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"http://localhost:5055", "localhost:5055", false},
		{"http://tracker.example.com/path", "tracker.example.com:80", false},
		{"https://tracker.example.com", "tracker.example.com:443", false},
		{"http://[::1]:8082/", "[::1]:8082", false},
		{"ftp://host", "", true},
		{"/relative", "", true},
	}
	for _, test := range tests {
		got, err := CollectorAddress(test.url)
		if (err != nil) != test.wantErr {
			t.Errorf("CollectorAddress(%q) error = %v, wantErr %v", test.url, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("CollectorAddress(%q) = %q, want %q", test.url, got, test.want)
		}
	}
}
