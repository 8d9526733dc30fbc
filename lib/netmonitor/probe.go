// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package netmonitor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// link is the part of a network interface InterfaceProbe looks at.
type link struct {
	flags net.Flags
	addrs []net.Addr
}

// InterfaceProbe reports online when any interface is up, is not a
// loopback, and carries a global unicast address. This is the same
// signal a phone's connectivity manager gives: a usable network is
// attached, not that the collector answers.
type InterfaceProbe struct {
	links func() ([]link, error)
}

// NewInterfaceProbe returns a probe over the host's interfaces.
func NewInterfaceProbe() *InterfaceProbe {
	return &InterfaceProbe{links: systemLinks}
}

func (p *InterfaceProbe) Reachable(context.Context) bool {
	links, err := p.links()
	if err != nil {
		return false
	}
	for _, l := range links {
		if l.flags&net.FlagUp == 0 || l.flags&net.FlagLoopback != 0 {
			continue
		}
		for _, addr := range l.addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func systemLinks() ([]link, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	links := make([]link, 0, len(interfaces))
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		links = append(links, link{flags: iface.Flags, addrs: addrs})
	}
	return links, nil
}

// DialProbe reports online when a TCP connection to Address succeeds
// within Timeout.
type DialProbe struct {
	Address string
	Timeout time.Duration
}

// DefaultDialTimeout bounds one DialProbe attempt when Timeout is zero.
const DefaultDialTimeout = 3 * time.Second

func (p DialProbe) Reachable(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// CollectorAddress derives the host:port a DialProbe should try from
// the collector URL, filling in the scheme's default port.
func CollectorAddress(collectorURL string) (string, error) {
	parsed, err := url.Parse(collectorURL)
	if err != nil {
		return "", fmt.Errorf("parsing collector URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("collector URL %q has no host", collectorURL)
	}
	port := parsed.Port()
	if port == "" {
		switch parsed.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("collector URL %q: no port and unknown scheme %q", collectorURL, parsed.Scheme)
		}
	}
	return net.JoinHostPort(host, port), nil
}
