// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the controller's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	observedTotal        prometheus.Counter
	insertedTotal        prometheus.Counter
	sentTotal            prometheus.Counter
	sendFailuresTotal    prometheus.Counter
	staleDroppedTotal    prometheus.Counter
	retriesTotal         prometheus.Counter
	storageFailuresTotal *prometheus.CounterVec // by op: insert, peek, delete
	state                prometheus.Gauge
	online               prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "delivery",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		observedTotal:     counter("observations_total", "Positions received from the source."),
		insertedTotal:     counter("inserted_total", "Positions persisted in the queue."),
		sentTotal:         counter("sent_total", "Positions accepted by the collector."),
		sendFailuresTotal: counter("send_failures_total", "Requests that failed or were rejected."),
		staleDroppedTotal: counter("stale_dropped_total", "Queued records deleted unsent because they belong to another device."),
		retriesTotal:      counter("retries_scheduled_total", "Retry timers started after a failed step."),
		storageFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Subsystem: "delivery",
			Name:      "storage_failures_total",
			Help:      "Queue operations that failed.",
		}, []string{"op"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "delivery",
			Name:      "state",
			Help:      "Current controller state (0 idle, 1 reading, 2 deciding, 3 sending, 4 deleting, 5 waiting for data, 6 retry scheduled).",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Subsystem: "delivery",
			Name:      "online",
			Help:      "1 when the network is considered reachable.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.observedTotal,
		m.insertedTotal,
		m.sentTotal,
		m.sendFailuresTotal,
		m.staleDroppedTotal,
		m.retriesTotal,
		m.storageFailuresTotal,
		m.state,
		m.online,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observed() {
	if m == nil {
		return
	}
	m.observedTotal.Inc()
}

func (m *Metrics) inserted() {
	if m == nil {
		return
	}
	m.insertedTotal.Inc()
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.sentTotal.Inc()
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendFailuresTotal.Inc()
}

func (m *Metrics) staleDropped() {
	if m == nil {
		return
	}
	m.staleDroppedTotal.Inc()
}

func (m *Metrics) retryScheduled() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *Metrics) storageFailure(op opKind) {
	if m == nil {
		return
	}
	m.storageFailuresTotal.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) setState(state State) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Metrics) setOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}
