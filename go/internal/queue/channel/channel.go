// Package channel isolates the queue client from the message bus. It exposes
// the two primitives the remote queue manager offers: a request/response call
// that toggles a user's membership, and a stream of full-queue snapshots.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
)

// Channel is the transport the queue client depends on
type Channel interface {
	// RequestMembership performs one round trip to the queue manager.
	// It returns nil on acknowledgment or a *TransportError. It never retries.
	RequestMembership(ctx context.Context, userID string, enqueue bool, allotted time.Duration) error

	// SubscribeSnapshots registers handler for every snapshot broadcast from now
	// on. The handler is called in arrival order and never concurrently with
	// itself for the same subscription.
	SubscribeSnapshots(ctx context.Context, handler SnapshotHandler) (Subscription, error)
}

// SnapshotHandler receives the raw bytes of one snapshot broadcast
type SnapshotHandler func(data []byte)

// Subscription is a handle on a snapshot subscription
type Subscription interface {
	Unsubscribe() error
}

// TransportError reports a request or subscription the bus could not deliver
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("queue transport: %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsTransport reports whether err is, or wraps, a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ErrRejected is the cause of a TransportError when the manager answered but
// did not acknowledge the request
var ErrRejected = errors.New("request rejected by queue manager")

// newMembershipRequest builds the wire request. The manager expects whole
// seconds; allotted time is ignored when leaving.
func newMembershipRequest(userID string, enqueue bool, allotted time.Duration) wire.MembershipRequest {
	req := wire.MembershipRequest{UserID: userID, Enqueue: enqueue}
	if enqueue {
		req.StudyTime = int64(allotted / time.Second)
	}
	return req
}
