// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mymetro/beacon/lib/delivery"
	"github.com/mymetro/beacon/lib/status"
)

const shutdownTimeout = 5 * time.Second

// snapshotter is the part of the controller the status endpoint reads.
type snapshotter interface {
	Snapshot() delivery.Snapshot
}

// messageLog is the part of status.Log the status endpoint uses.
type messageLog interface {
	Entries() []status.Entry
	Clear()
}

type httpServer struct {
	address string
	handler http.Handler
	logger  *slog.Logger
}

func newHTTPServer(address string, gatherer prometheus.Gatherer, controller snapshotter, messages messageLog, logger *slog.Logger) *httpServer {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, newStatusResponse(controller.Snapshot(), messages.Entries()))
	})
	mux.HandleFunc("DELETE /status", func(w http.ResponseWriter, _ *http.Request) {
		messages.Clear()
		w.WriteHeader(http.StatusNoContent)
	})
	return &httpServer{address: address, handler: mux, logger: logger}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *httpServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(listener) }()
	s.logger.Info("http endpoint listening", "address", listener.Addr().String())

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http endpoint: %w", err)
	}
	if err := <-serveDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

type statusResponse struct {
	State            string   `json:"state"`
	Online           bool     `json:"online"`
	DeviceID         string   `json:"device_id"`
	QueueBusy        bool     `json:"queue_busy"`
	QueueBacklog     int      `json:"queue_backlog"`
	TransportBusy    bool     `json:"transport_busy"`
	TransportBacklog int      `json:"transport_backlog"`
	Messages         []string `json:"messages"`
}

func newStatusResponse(snapshot delivery.Snapshot, entries []status.Entry) statusResponse {
	messages := make([]string, len(entries))
	for i, entry := range entries {
		messages[i] = entry.String()
	}
	return statusResponse{
		State:            snapshot.State.String(),
		Online:           snapshot.Online,
		DeviceID:         snapshot.DeviceID,
		QueueBusy:        snapshot.QueueBusy,
		QueueBacklog:     snapshot.QueueBacklog,
		TransportBusy:    snapshot.TransportBusy,
		TransportBacklog: snapshot.TransportBacklog,
		Messages:         messages,
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.Warn("writing http response", "error", err)
	}
}
