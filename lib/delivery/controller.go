// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/position"
	"github.com/mymetro/beacon/lib/queue"
	"github.com/mymetro/beacon/lib/source"
	"github.com/mymetro/beacon/lib/status"
	"github.com/mymetro/beacon/lib/transport"
)

var errStopped = errors.New("delivery: controller stopped")

// maxDirectBacklog bounds unbuffered observations waiting for the
// transport lane. Older ones are dropped first.
const maxDirectBacklog = 64

// Network is the reachability signal. netmonitor.Monitor implements it.
type Network interface {
	Online() bool
	Transitions() <-chan bool
}

// Options are the controller's collaborators. Queue, Sender, Source,
// Network and Clock are required.
type Options struct {
	Queue   queue.Queue
	Sender  transport.Sender
	Source  source.Source
	Network Network
	Clock   clock.Clock

	// Status defaults to status.Discard.
	Status status.Sink

	// Metrics may be nil.
	Metrics *Metrics

	Logger *slog.Logger

	// OnTransition, if set, is called on the controller goroutine for
	// every state change. It must not block.
	OnTransition func(from, to State)
}

// Snapshot is a point-in-time view of the controller for status
// endpoints and tests.
type Snapshot struct {
	State            State
	Online           bool
	QueueBusy        bool
	QueueBacklog     int
	TransportBusy    bool
	TransportBacklog int
	DeviceID         string
}

// Controller runs the delivery state machine. Create it with New and
// drive it with Run.
type Controller struct {
	queue        queue.Queue
	sender       transport.Sender
	source       source.Source
	network      Network
	clock        clock.Clock
	status       status.Sink
	metrics      *Metrics
	logger       *slog.Logger
	onTransition func(from, to State)

	inbox chan event
	done  chan struct{}

	// inFlight counts operation goroutines; Wait blocks on it.
	inFlight sync.WaitGroup
	snapshot atomic.Pointer[Snapshot]

	// Everything below is owned by the Run goroutine.
	cfg      Config
	state    State
	online   bool
	stopping bool
	opCtx    context.Context

	queueBusy    bool
	queueBacklog []queueOp

	transportBusy bool
	drainSend     *sendJob
	directBacklog []position.Position

	// cycle is set while a drain step is in flight. State alone cannot
	// tell: StateSending also covers unbuffered sends.
	cycle bool

	retryTimer      *clock.Timer
	retryGeneration uint64
}

// New validates cfg and returns a controller ready to Run.
func New(cfg Config, opts Options) (*Controller, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch {
	case opts.Queue == nil:
		return nil, fmt.Errorf("delivery: Queue is required")
	case opts.Sender == nil:
		return nil, fmt.Errorf("delivery: Sender is required")
	case opts.Source == nil:
		return nil, fmt.Errorf("delivery: Source is required")
	case opts.Network == nil:
		return nil, fmt.Errorf("delivery: Network is required")
	case opts.Clock == nil:
		return nil, fmt.Errorf("delivery: Clock is required")
	}

	sink := opts.Status
	if sink == nil {
		sink = status.Discard{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Controller{
		queue:        opts.Queue,
		sender:       opts.Sender,
		source:       opts.Source,
		network:      opts.Network,
		clock:        opts.Clock,
		status:       sink,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "delivery"),
		onTransition: opts.OnTransition,
		inbox:        make(chan event, 16),
		done:         make(chan struct{}),
		cfg:          cfg,
	}
	c.publish()
	return c, nil
}

// Run processes observations, network transitions and operation
// completions until ctx is done, then returns ctx.Err(). Run may be
// called once.
//
// On return the retry timer is stopped and no new operation starts.
// Operations already submitted run to completion on a context that
// ignores ctx's cancellation; their results are discarded. Call Wait
// before closing the queue.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.opCtx = context.WithoutCancel(ctx)
	c.online = c.network.Online()
	c.metrics.setOnline(c.online)
	c.status.Notify(status.ServiceCreated)
	c.logger.Info("delivery controller started",
		"device_id", c.cfg.DeviceID,
		"buffer", c.cfg.Buffer,
		"online", c.online,
		"retry_delay", c.cfg.RetryDelay,
	)

	if c.online {
		c.requestRead("start")
	}
	c.publish()

	positions := c.source.Positions()
	transitions := c.network.Transitions()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case p := <-positions:
			c.observe(p)
		case online := <-transitions:
			c.networkChanged(online)
		case ev := <-c.inbox:
			c.handle(ev)
		}
		c.publish()
	}
}

// Reconfigure replaces the configuration. It takes effect for every
// operation started after the controller processes it, and returns once
// Run has applied it. Returns an error for an invalid config or when
// Run has finished without applying it.
func (c *Controller) Reconfigure(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	select {
	case <-c.done:
		return errStopped
	case c.inbox <- reconfigured{cfg: cfg, reply: reply}:
	}
	// A send that lands after Run returned sits unread in the inbox,
	// so only Run's answer counts as applied.
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return errStopped
		}
	}
}

// Wait blocks until every submitted queue and transport operation has
// returned. Meaningful after Run returns.
func (c *Controller) Wait() {
	c.inFlight.Wait()
}

// Snapshot returns the state as of the last processed event. Safe from
// any goroutine.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

func (c *Controller) publish() {
	c.snapshot.Store(&Snapshot{
		State:            c.state,
		Online:           c.online,
		QueueBusy:        c.queueBusy,
		QueueBacklog:     len(c.queueBacklog),
		TransportBusy:    c.transportBusy,
		TransportBacklog: len(c.directBacklog) + boolToInt(c.drainSend != nil),
		DeviceID:         c.cfg.DeviceID,
	})
}

func (c *Controller) setState(next State) {
	if next == c.state {
		return
	}
	previous := c.state
	c.state = next
	if !next.draining() {
		c.cycle = false
	}
	c.metrics.setState(next)
	c.logger.Debug("delivery state", "from", previous, "to", next)
	if c.onTransition != nil {
		c.onTransition(previous, next)
	}
}

func (c *Controller) shutdown() {
	c.stopping = true
	c.cancelRetry()
	c.status.Notify(status.ServiceDestroyed)
	c.logger.Info("delivery controller stopped",
		"state", c.state,
		"queue_busy", c.queueBusy,
		"transport_busy", c.transportBusy,
		"dropped_queue_ops", len(c.queueBacklog),
		"dropped_direct_sends", len(c.directBacklog),
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// post delivers a completion to Run, or drops it once Run is gone.
func (c *Controller) post(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

func (c *Controller) observe(p position.Position) {
	c.metrics.observed()
	c.status.Notify(status.LocationUpdate)
	p = p.WithIdentity(c.cfg.DeviceID, c.cfg.Correlation)

	if c.cfg.Buffer {
		c.submitQueue(queueOp{kind: opInsert, position: p})
		return
	}

	if len(c.directBacklog) >= maxDirectBacklog {
		dropped := c.directBacklog[0]
		c.directBacklog = c.directBacklog[1:]
		c.logger.Warn("direct send backlog full, dropping oldest", "position", dropped)
	}
	c.directBacklog = append(c.directBacklog, p)
	c.pumpTransport()
}

func (c *Controller) networkChanged(online bool) {
	if online == c.online {
		return
	}
	c.online = online
	c.metrics.setOnline(online)
	if online {
		c.status.Notify(status.NetworkOnline)
		c.requestRead("network online")
	} else {
		c.status.Notify(status.NetworkOffline)
	}
}

// requestRead starts a drain cycle unless one is already in flight.
func (c *Controller) requestRead(reason string) {
	if !c.cfg.Buffer {
		return
	}
	if c.cycle {
		c.logger.Debug("read coalesced", "reason", reason, "state", c.state)
		return
	}
	c.read()
}

// read issues the peek that starts (or continues) a drain cycle.
func (c *Controller) read() {
	c.cancelRetry()
	c.cycle = true
	c.setState(StateReading)
	c.submitQueue(queueOp{kind: opPeek})
}

func (c *Controller) scheduleRetry(reason string, err error) {
	c.cancelRetry()
	generation := c.retryGeneration
	delay := c.cfg.RetryDelay
	c.retryTimer = c.clock.AfterFunc(delay, func() {
		c.post(retryFired{generation: generation})
	})
	c.metrics.retryScheduled()
	c.logger.Warn("delivery step failed, retrying", "reason", reason, "error", err, "retry_in", delay)
	c.setState(StateRetryScheduled)
}

// cancelRetry stops the pending timer and invalidates one that already
// fired but whose event is still queued.
func (c *Controller) cancelRetry() {
	c.retryGeneration++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case inserted:
		c.queueBusy = false
		c.onInserted(ev)
		c.pumpQueue()
	case peeked:
		c.queueBusy = false
		c.onPeeked(ev)
		c.pumpQueue()
	case deleted:
		c.queueBusy = false
		c.onDeleted(ev)
		c.pumpQueue()
	case sent:
		c.transportBusy = false
		c.onSent(ev)
		c.pumpTransport()
	case retryFired:
		c.onRetryFired(ev)
	case reconfigured:
		c.onReconfigured(ev)
	}
}

func (c *Controller) onInserted(ev inserted) {
	if ev.err != nil {
		// The observation is lost. Keeping it in memory for another
		// attempt would grow without bound on a broken disk.
		c.metrics.storageFailure(opInsert)
		c.logger.Error("failed to persist observation, dropping it", "position", ev.position, "error", ev.err)
		return
	}
	c.metrics.inserted()
	c.logger.Debug("observation queued", "id", ev.id)
	if c.online && (c.state == StateWaitingForData || c.state == StateIdle) {
		c.requestRead("data available")
	}
}

func (c *Controller) onPeeked(ev peeked) {
	if ev.err != nil {
		c.metrics.storageFailure(opPeek)
		c.scheduleRetry("read", ev.err)
		return
	}
	if !c.cfg.Buffer {
		c.setState(StateIdle)
		return
	}
	c.setState(StateDeciding)
	switch {
	case ev.position == nil:
		c.setState(StateWaitingForData)
	case ev.position.DeviceID == c.cfg.DeviceID:
		c.setState(StateSending)
		c.submitSend(sendJob{position: *ev.position, buffered: true})
	default:
		c.logger.Info("deleting record from another device", "record_device_id", ev.position.DeviceID, "position", *ev.position)
		c.setState(StateDeleting)
		c.submitQueue(queueOp{kind: opDelete, id: ev.position.ID, stale: true})
	}
}

func (c *Controller) onSent(ev sent) {
	if !ev.job.buffered {
		if ev.err != nil {
			c.metrics.sendFailed()
			c.status.Notify(status.SendFailed)
			c.logger.Warn("send failed, dropping unbuffered observation", "position", ev.job.position, "error", ev.err)
		} else {
			c.metrics.sent()
		}
		if !c.cycle && c.state == StateSending && c.drainSend == nil && len(c.directBacklog) == 0 {
			c.setState(StateIdle)
		}
		return
	}

	if ev.err != nil {
		c.metrics.sendFailed()
		c.status.Notify(status.SendFailed)
		if !c.cfg.Buffer {
			// Buffering was switched off mid-cycle; the record stays
			// queued for whenever it is switched back on.
			c.setState(StateIdle)
			return
		}
		c.scheduleRetry("send", ev.err)
		return
	}
	c.metrics.sent()
	c.setState(StateDeleting)
	c.submitQueue(queueOp{kind: opDelete, id: ev.job.position.ID})
}

func (c *Controller) onDeleted(ev deleted) {
	if ev.err != nil {
		c.metrics.storageFailure(opDelete)
		c.scheduleRetry("delete", ev.err)
		return
	}
	if ev.stale {
		c.metrics.staleDropped()
	}
	if !c.cfg.Buffer {
		c.setState(StateIdle)
		return
	}
	c.read()
}

func (c *Controller) onRetryFired(ev retryFired) {
	if ev.generation != c.retryGeneration || c.state != StateRetryScheduled {
		c.logger.Debug("ignoring superseded retry")
		return
	}
	c.retryTimer = nil
	if !c.online {
		c.logger.Debug("retry due while offline, waiting for network")
		return
	}
	c.read()
}

func (c *Controller) onReconfigured(ev reconfigured) {
	previous := c.cfg
	c.cfg = ev.cfg
	c.logger.Info("delivery reconfigured",
		"device_id", c.cfg.DeviceID,
		"buffer", c.cfg.Buffer,
		"url_changed", previous.URL != c.cfg.URL,
	)

	switch {
	case c.cfg.Buffer && !previous.Buffer:
		if c.online {
			c.requestRead("buffering enabled")
		}
	case !c.cfg.Buffer && previous.Buffer:
		// A step in flight finishes; a parked cycle is abandoned.
		if c.state == StateWaitingForData || c.state == StateRetryScheduled {
			c.cancelRetry()
			c.setState(StateIdle)
		}
	}
	if ev.reply != nil {
		ev.reply <- nil
	}
}
