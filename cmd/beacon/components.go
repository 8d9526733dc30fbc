// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mymetro/beacon/lib/config"
	"github.com/mymetro/beacon/lib/netmonitor"
	"github.com/mymetro/beacon/lib/queue"
)

// openQueue opens the configured storage backend.
func openQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		q, err := queue.OpenSQLite(ctx, queue.SQLiteConfig{
			Path:   cfg.Storage.Path,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.BackendRedis:
		q, err := queue.OpenRedis(ctx, queue.RedisConfig{
			URL:    cfg.Storage.RedisURL,
			Key:    cfg.Storage.RedisKey,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// newProbe builds the connectivity probe. The dial probe targets the
// collector unless network.address overrides it.
func newProbe(cfg config.NetworkConfig, collectorURL string) (netmonitor.Probe, error) {
	switch cfg.Probe {
	case config.ProbeInterface:
		return netmonitor.NewInterfaceProbe(), nil
	case config.ProbeDial:
		address := cfg.Address
		if address == "" {
			var err error
			address, err = netmonitor.CollectorAddress(collectorURL)
			if err != nil {
				return nil, err
			}
		}
		return netmonitor.DialProbe{Address: address}, nil
	case config.ProbeNone:
		return netmonitor.ProbeFunc(func(context.Context) bool { return true }), nil
	}
	return nil, fmt.Errorf("unknown network probe %q", cfg.Probe)
}

// queueLengthTimeout bounds the queue read behind each scrape.
const queueLengthTimeout = 2 * time.Second

// queueLengthGauge reports the number of positions waiting to be sent,
// or NaN when the queue cannot be read within timeout.
func queueLengthGauge(q queue.Queue, timeout time.Duration, logger *slog.Logger) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "queue",
		Name:      "length",
		Help:      "Positions stored and not yet confirmed by the collector.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := q.Len(ctx)
		if err != nil {
			logger.Warn("reading queue length for metrics", "error", err)
			return math.NaN()
		}
		return float64(n)
	})
}
