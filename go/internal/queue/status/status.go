// Package status holds the client's locally derived view of its queue position.
// A Status is rebuilt from scratch for every snapshot and never patched.
package status

import (
	"fmt"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
)

// State is one of the three places a client can be relative to the queue
type State string

const (
	NotQueued State = "not_queued"
	Waiting   State = "waiting"
	Active    State = "active"
)

// Status is the derived client status. Minutes/Seconds hold the time left when
// Active and the estimated wait when Waiting; both are zero when NotQueued.
type Status struct {
	State       State     `json:"state"`
	Minutes     int       `json:"minutes"`
	Seconds     int       `json:"seconds"`
	Position    int       `json:"position"`     // index in the snapshot, -1 when not queued
	QueueLength int       `json:"queue_length"` // entries in the snapshot
	ObservedAt  time.Time `json:"observed_at"`
}

// NotQueuedAt returns the NotQueued status observed at t
func NotQueuedAt(queueLength int, t time.Time) Status {
	return Status{State: NotQueued, Position: -1, QueueLength: queueLength, ObservedAt: t}
}

// ActiveAt returns an Active status built from the entry's time_left
func ActiveAt(timeLeft wire.Duration, queueLength int, t time.Time) Status {
	m, s := timeLeft.Split()
	return Status{State: Active, Minutes: m, Seconds: s, Position: 0, QueueLength: queueLength, ObservedAt: t}
}

// WaitingAt returns a Waiting status built from the entry's wait_time
func WaitingAt(waitTime wire.Duration, position, queueLength int, t time.Time) Status {
	m, s := waitTime.Split()
	return Status{State: Waiting, Minutes: m, Seconds: s, Position: position, QueueLength: queueLength, ObservedAt: t}
}

// Duration is the time carried by the status as a time.Duration
func (s Status) Duration() time.Duration {
	return time.Duration(s.Minutes)*time.Minute + time.Duration(s.Seconds)*time.Second
}

// Remaining estimates the time still left at now by counting down from the
// moment the status was observed. The queue manager stays authoritative; this
// is display feedback between snapshots.
func (s Status) Remaining(now time.Time) time.Duration {
	if s.State == NotQueued {
		return 0
	}
	left := s.Duration() - now.Sub(s.ObservedAt)
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

// InQueue reports whether the user is waiting or active
func (s Status) InQueue() bool {
	return s.State != NotQueued
}

func (s Status) String() string {
	if s.State == NotQueued {
		return string(NotQueued)
	}
	return fmt.Sprintf("%s{%d:%02d}", s.State, s.Minutes, s.Seconds)
}
