// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"github.com/mymetro/beacon/lib/position"
)

type opKind int

const (
	opInsert opKind = iota
	opPeek
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opPeek:
		return "peek"
	case opDelete:
		return "delete"
	}
	return "unknown"
}

type queueOp struct {
	kind     opKind
	position position.Position
	id       int64
	// stale marks the delete of a record from another device.
	stale bool
}

type sendJob struct {
	position position.Position
	// buffered jobs come from the queue and are deleted on success.
	buffered bool
}

// Completion events posted to the inbox.
type (
	event any

	inserted struct {
		position position.Position
		id       int64
		err      error
	}
	peeked struct {
		position *position.Position
		err      error
	}
	deleted struct {
		id    int64
		stale bool
		err   error
	}
	sent struct {
		job sendJob
		err error
	}
	retryFired struct {
		generation uint64
	}
	reconfigured struct {
		cfg   Config
		reply chan<- error
	}
)

func (c *Controller) submitQueue(op queueOp) {
	c.queueBacklog = append(c.queueBacklog, op)
	c.pumpQueue()
}

// pumpQueue starts the next queue operation if the lane is free.
func (c *Controller) pumpQueue() {
	if c.stopping || c.queueBusy || len(c.queueBacklog) == 0 {
		return
	}
	op := c.queueBacklog[0]
	c.queueBacklog = c.queueBacklog[1:]
	c.queueBusy = true

	ctx := c.opCtx
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()
		switch op.kind {
		case opInsert:
			id, err := c.queue.Insert(ctx, op.position)
			c.post(inserted{position: op.position, id: id, err: err})
		case opPeek:
			p, err := c.queue.PeekOldest(ctx)
			c.post(peeked{position: p, err: err})
		case opDelete:
			err := c.queue.Delete(ctx, op.id)
			c.post(deleted{id: op.id, stale: op.stale, err: err})
		}
	}()
}

// submitSend hands the drain cycle's job to the transport lane. It
// goes ahead of any waiting unbuffered observations.
func (c *Controller) submitSend(job sendJob) {
	c.drainSend = &job
	c.pumpTransport()
}

// pumpTransport starts the next send if the lane is free.
func (c *Controller) pumpTransport() {
	if c.stopping || c.transportBusy {
		return
	}
	var job sendJob
	switch {
	case c.drainSend != nil:
		job = *c.drainSend
		c.drainSend = nil
	case len(c.directBacklog) > 0:
		job = sendJob{position: c.directBacklog[0]}
		c.directBacklog = c.directBacklog[1:]
		if !c.cycle {
			c.setState(StateSending)
		}
	default:
		return
	}

	c.transportBusy = true
	request := c.cfg.encode(job.position)

	ctx := c.opCtx
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()
		err := c.sender.Send(ctx, request)
		c.post(sent{job: job, err: err})
	}()
}
