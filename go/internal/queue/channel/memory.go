package channel

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
)

// MemoryChannel is an in-process Channel. Tests and the standalone demo mode
// use it in place of a bus: Broadcast plays the role of the queue manager.
type MemoryChannel struct {
	mu       sync.Mutex
	subs     []*memorySubscription
	requests []wire.MembershipRequest
	failure  error
	subFail  error

	// serializes Broadcast so deliveries never overlap
	deliverMu sync.Mutex
}

// NewMemoryChannel creates an empty in-process channel
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

// FailRequests makes every following request fail with cause. Pass nil to recover.
func (c *MemoryChannel) FailRequests(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = cause
}

// FailSubscriptions makes every following SubscribeSnapshots fail with cause.
// Pass nil to recover.
func (c *MemoryChannel) FailSubscriptions(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subFail = cause
}

// RequestMembership records the request and acknowledges it
func (c *MemoryChannel) RequestMembership(ctx context.Context, userID string, enqueue bool, allotted time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "request", Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return &TransportError{Op: "request", Cause: c.failure}
	}
	c.requests = append(c.requests, newMembershipRequest(userID, enqueue, allotted))
	return nil
}

// Requests returns the membership requests received so far
func (c *MemoryChannel) Requests() []wire.MembershipRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.MembershipRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// SubscribeSnapshots registers handler for subsequent broadcasts
func (c *MemoryChannel) SubscribeSnapshots(ctx context.Context, handler SnapshotHandler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: err}
	}

	sub := &memorySubscription{channel: c, handler: handler}
	c.mu.Lock()
	if c.subFail != nil {
		c.mu.Unlock()
		return nil, &TransportError{Op: "subscribe", Cause: c.subFail}
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Subscribers returns the number of active snapshot subscriptions
func (c *MemoryChannel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Broadcast delivers data to every subscriber, in subscription order, and
// returns once all handlers have run.
func (c *MemoryChannel) Broadcast(data []byte) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	subs := make([]*memorySubscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.handler(data)
	}
}

func (c *MemoryChannel) remove(sub *memorySubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

type memorySubscription struct {
	channel *MemoryChannel
	handler SnapshotHandler
}

func (s *memorySubscription) Unsubscribe() error {
	s.channel.remove(s)
	return nil
}
