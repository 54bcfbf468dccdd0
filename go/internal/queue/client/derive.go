package client

import (
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
)

// activeIndex is the snapshot position of the user holding the resource
const activeIndex = 0

// Derive computes userID's status from a snapshot observed at now.
//
// Entries are scanned from index 0 upwards and the first entry carrying
// userID decides the result; later duplicates are ignored. Index 0 is the
// active user and its time_left is reported. Any other index is waiting and
// its wait_time is reported. No match means the user is not queued.
func Derive(snap wire.Snapshot, userID string, now time.Time) status.Status {
	n := len(snap.Queue)
	for i, entry := range snap.Queue {
		if entry.UserID != userID {
			continue
		}
		if i == activeIndex {
			return status.ActiveAt(*entry.TimeLeft, n, now)
		}
		return status.WaitingAt(*entry.WaitTime, i, n, now)
	}
	return status.NotQueuedAt(n, now)
}
