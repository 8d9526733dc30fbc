// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

// State is the drain cycle's current step.
type State int

const (
	StateIdle State = iota
	StateReading
	StateDeciding
	StateSending
	StateDeleting
	StateWaitingForData
	StateRetryScheduled
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateReading:        "reading",
	StateDeciding:       "deciding",
	StateSending:        "sending",
	StateDeleting:       "deleting",
	StateWaitingForData: "waiting_for_data",
	StateRetryScheduled: "retry_scheduled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// draining reports whether a drain step is in flight, which makes a new
// read request redundant.
func (s State) draining() bool {
	switch s {
	case StateReading, StateDeciding, StateSending, StateDeleting:
		return true
	}
	return false
}
