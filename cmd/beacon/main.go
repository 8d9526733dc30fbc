// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/config"
	"github.com/mymetro/beacon/lib/delivery"
	"github.com/mymetro/beacon/lib/netmonitor"
	"github.com/mymetro/beacon/lib/process"
	"github.com/mymetro/beacon/lib/source"
	"github.com/mymetro/beacon/lib/status"
	"github.com/mymetro/beacon/lib/transport"
	"github.com/mymetro/beacon/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("beacon", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the config file (default: $BEACON_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("beacon", version.Full())
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("BEACON_CONFIG")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	deviceID, err := resolveDevice(cfg, logger)
	if err != nil {
		return err
	}

	positions, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := positions.Close(); err != nil {
			logger.Error("closing queue", "error", err)
		}
	}()

	probe, err := newProbe(cfg.Network, cfg.Collector.URL)
	if err != nil {
		return err
	}

	clk := clock.Real()
	monitor := netmonitor.New(ctx, probe, clk, cfg.Network.PollInterval, logger)

	battery := source.SysfsBattery{Dir: cfg.Source.BatteryPath, Logger: logger}
	gpsd := source.NewGPSD(cfg.Source.GPSDAddress, clk, battery, logger)
	filtered := source.NewFiltered(gpsd, &source.Filter{
		Interval: cfg.Source.Interval,
		Distance: cfg.Source.Distance,
		Angle:    cfg.Source.Angle,
	})

	statusLog := status.NewLog(cfg.Status.Limit, clk.Now, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		queueLengthGauge(positions, queueLengthTimeout, logger),
	)
	metrics, err := delivery.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	controller, err := delivery.New(deliveryConfig(cfg, deviceID), delivery.Options{
		Queue:   positions,
		Sender:  transport.NewHTTP(&http.Client{}, cfg.Collector.Timeout),
		Source:  filtered,
		Network: monitor,
		Clock:   clk,
		Status:  statusLog,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	// A component that fails brings the whole process down; the
	// supervisor restarts it.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	start := func(name string, runFunc func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runFunc(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("component failed", "component", name, "error", err)
				cancel(fmt.Errorf("%s: %w", name, err))
			}
		}()
	}

	start("network monitor", monitor.Run)
	start("gpsd", gpsd.Run)
	start("filter", filtered.Run)
	watcher := config.NewWatcher(configPath, logger)
	start("config watcher", watcher.Run)
	start("reconfigure", func(ctx context.Context) error {
		return applyChanges(ctx, watcher.Changes(), cfg, controller, logger)
	})
	if cfg.Metrics.Address != "" {
		server := newHTTPServer(cfg.Metrics.Address, registry, controller, statusLog, logger)
		start("http", server.Run)
	}

	logger.Info("beacon running",
		"version", version.Info(),
		"device_id", deviceID,
		"collector", cfg.Collector.URL,
		"storage", cfg.Storage.Backend,
		"probe", cfg.Network.Probe,
	)

	runErr := controller.Run(ctx)
	logger.Info("shutting down")

	wg.Wait()
	controller.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// loadConfig loads path, or BEACON_CONFIG's file when path is empty,
// and validates the result.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
