// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mymetro/beacon/lib/clock"
	"github.com/mymetro/beacon/lib/position"
	"github.com/mymetro/beacon/lib/protocol"
	"github.com/mymetro/beacon/lib/queue"
	"github.com/mymetro/beacon/lib/source"
	"github.com/mymetro/beacon/lib/testutil"
)

const (
	testDevice  = "123456"
	testURL     = "http://collector.test:5055"
	retryDelay  = 30 * time.Second
	waitTimeout = 5 * time.Second
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// memoryQueue is a Queue with injectable failures.
type memoryQueue struct {
	mu      sync.Mutex
	records map[int64]position.Position
	nextID  int64
	fail    map[string]int
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{
		records: make(map[int64]position.Position),
		fail:    make(map[string]int),
	}
}

// failNext makes the next n calls of op fail with queue.ErrStorage.
func (q *memoryQueue) failNext(op string, n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail[op] = n
}

func (q *memoryQueue) injected(op string) error {
	if q.fail[op] > 0 {
		q.fail[op]--
		return fmt.Errorf("%w: %s: injected", queue.ErrStorage, op)
	}
	return nil
}

func (q *memoryQueue) Insert(_ context.Context, p position.Position) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.injected("insert"); err != nil {
		return 0, err
	}
	q.nextID++
	p.ID = q.nextID
	q.records[p.ID] = p
	return p.ID, nil
}

func (q *memoryQueue) PeekOldest(context.Context) (*position.Position, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.injected("peek"); err != nil {
		return nil, err
	}
	ids := q.idsLocked()
	if len(ids) == 0 {
		return nil, nil
	}
	p := q.records[ids[0]]
	return &p, nil
}

func (q *memoryQueue) Delete(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.injected("delete"); err != nil {
		return err
	}
	delete(q.records, id)
	return nil
}

func (q *memoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records), nil
}

func (q *memoryQueue) Close() error { return nil }

func (q *memoryQueue) idsLocked() []int64 {
	ids := make([]int64, 0, len(q.records))
	for id := range q.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// seed inserts p directly, bypassing the controller.
func (q *memoryQueue) seed(p position.Position) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	p.ID = q.nextID
	q.records[p.ID] = p
	return p.ID
}

func (q *memoryQueue) length() int {
	n, _ := q.Len(context.Background())
	return n
}

// recordingQueue reports each completed operation on ops as
// "insert", "peek" or "delete".
type recordingQueue struct {
	queue.Queue
	ops chan string
}

func (q recordingQueue) Insert(ctx context.Context, p position.Position) (int64, error) {
	id, err := q.Queue.Insert(ctx, p)
	q.ops <- "insert"
	return id, err
}

func (q recordingQueue) PeekOldest(ctx context.Context) (*position.Position, error) {
	p, err := q.Queue.PeekOldest(ctx)
	q.ops <- "peek"
	return p, err
}

func (q recordingQueue) Delete(ctx context.Context, id int64) error {
	err := q.Queue.Delete(ctx, id)
	q.ops <- "delete"
	return err
}

// fakeSender records each request on requests and fails the first
// failures calls. When gate is non-nil each Send waits for a value on
// it before returning.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	gate     chan struct{}
	requests chan protocol.Request
}

func newFakeSender() *fakeSender {
	return &fakeSender{requests: make(chan protocol.Request, 1000)}
}

func (s *fakeSender) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *fakeSender) Send(_ context.Context, request protocol.Request) error {
	s.requests <- request
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	return nil
}

// fakeNetwork starts in a fixed state; tests flip it by sending on
// transitions, which blocks until the controller takes the value.
type fakeNetwork struct {
	initial     bool
	transitions chan bool
}

func (n *fakeNetwork) Online() bool             { return n.initial }
func (n *fakeNetwork) Transitions() <-chan bool { return n.transitions }

type recordingSink struct {
	messages chan string
}

func (s *recordingSink) Notify(message string) { s.messages <- message }

type harness struct {
	t          *testing.T
	clock      *clock.FakeClock
	queue      queue.Queue
	memory     *memoryQueue
	ops        chan string
	sender     *fakeSender
	network    *fakeNetwork
	source     source.Channel
	sink       *recordingSink
	metrics    *Metrics
	states     chan State
	controller *Controller
	cancel     context.CancelFunc
	done       chan error
	gateClosed bool
	stopped    bool
}

type harnessOption func(*harness, *Config)

func offline() harnessOption {
	return func(h *harness, _ *Config) { h.network.initial = false }
}

func unbuffered() harnessOption {
	return func(_ *harness, cfg *Config) { cfg.Buffer = false }
}

// withQueue replaces the memoryQueue; h.memory stays unused.
func withQueue(q queue.Queue) harnessOption {
	return func(h *harness, _ *Config) { h.queue = q }
}

func withMemory(m *memoryQueue) harnessOption {
	return func(h *harness, _ *Config) { h.queue = m; h.memory = m }
}

func withSender(s *fakeSender) harnessOption {
	return func(h *harness, _ *Config) { h.sender = s }
}

func withMetrics(m *Metrics) harnessOption {
	return func(h *harness, _ *Config) { h.metrics = m }
}

// newHarness wires a controller to fakes and starts Run. The default
// is online, buffered, backed by a memoryQueue.
func newHarness(t *testing.T, options ...harnessOption) *harness {
	t.Helper()
	memory := newMemoryQueue()
	h := &harness{
		t:       t,
		clock:   clock.Fake(epoch),
		queue:   memory,
		memory:  memory,
		sender:  newFakeSender(),
		network: &fakeNetwork{initial: true, transitions: make(chan bool)},
		source:  make(source.Channel),
		sink:    &recordingSink{messages: make(chan string, 1000)},
		states:  make(chan State, 1000),
		ops:     make(chan string, 1000),
	}
	cfg := Config{URL: testURL, DeviceID: testDevice, Buffer: true, RetryDelay: retryDelay}
	for _, option := range options {
		option(h, &cfg)
	}

	controller, err := New(cfg, Options{
		Queue:   recordingQueue{Queue: h.queue, ops: h.ops},
		Sender:  h.sender,
		Source:  h.source,
		Network: h.network,
		Clock:   h.clock,
		Status:  h.sink,
		Metrics: h.metrics,
		OnTransition: func(_, to State) {
			h.states <- to
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.controller = controller

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- controller.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	if h.stopped {
		return
	}
	h.stopped = true
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(waitTimeout):
		h.t.Errorf("Run did not return after cancel")
	}
	h.releaseSender()
	h.controller.Wait()
}

// releaseSender unblocks every current and future Send on a gated
// sender.
func (h *harness) releaseSender() {
	if h.sender.gate != nil && !h.gateClosed {
		close(h.sender.gate)
		h.gateClosed = true
	}
}

// observe feeds a position whose time is epoch+offset seconds.
func (h *harness) observe(offset int) position.Position {
	h.t.Helper()
	p := position.Position{
		Time:      epoch.Add(time.Duration(offset) * time.Second),
		Latitude:  -37.8 + float64(offset)/1000,
		Longitude: 144.9,
	}
	select {
	case h.source <- p:
	case <-time.After(waitTimeout):
		h.t.Fatalf("controller did not accept observation %d", offset)
	}
	return p
}

func (h *harness) setOnline(online bool) {
	h.t.Helper()
	select {
	case h.network.transitions <- online:
	case <-time.After(waitTimeout):
		h.t.Fatalf("controller did not accept network transition")
	}
}

// waitForState reads transitions until want appears.
func (h *harness) waitForState(want State) {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-h.states:
			if got == want {
				return
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for state %v (snapshot %+v)", want, h.controller.Snapshot())
		}
	}
}

func (h *harness) waitForOp(want string) {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-h.ops:
			if got == want {
				return
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for queue op %q", want)
		}
	}
}

func (h *harness) waitForStatus(want string) {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-h.sink.messages:
			if got == want {
				return
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func (h *harness) nextRequest(msg string) protocol.Request {
	h.t.Helper()
	return testutil.RequireReceive(h.t, h.sender.requests, waitTimeout, msg)
}
