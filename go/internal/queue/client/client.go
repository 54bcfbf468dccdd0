// Package client derives a single user's queue status from the remote queue
// manager's snapshots and reports changes as notifications.
//
// The remote manager is authoritative for membership, order and timers. The
// client only asks to join or leave and reinterprets every snapshot it sees.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rmsqueue/go/internal/queue/channel"
	"github.com/mcdev12/rmsqueue/go/internal/queue/metrics"
	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrDuplicateSubscription is returned by Join when the user is already
// enqueued. No request is sent and no second subscription is created.
var ErrDuplicateSubscription = errors.New("already joined the queue")

// Client is one user's view of the queue
type Client struct {
	userID   string
	allotted time.Duration
	ch       channel.Channel
	notifier *notify.Notifier
	metrics  metrics.Collector
	clock    clockwork.Clock
	logger   zerolog.Logger

	// serializes Join, Leave and Close
	memberMu sync.Mutex
	sub      channel.Subscription

	// serializes snapshot derivations and join announcements with the
	// notifications they emit
	deriveMu sync.Mutex

	stateMu           sync.RWMutex
	current           status.Status
	enqueued          bool
	hasEverBeenActive bool
	lastSnapshotAt    time.Time
}

// Option configures a Client
type Option func(*Client)

// WithClock replaces the real clock, typically with a clockwork.FakeClock in tests
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithNotifier shares an existing notifier instead of creating one
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the base logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for userID that asks for allotted time once active.
// It does not talk to the queue manager until Join is called.
func New(userID string, allotted time.Duration, ch channel.Channel, opts ...Option) (*Client, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if allotted < 0 {
		return nil, fmt.Errorf("allotted time must not be negative, got %s", allotted)
	}
	if ch == nil {
		return nil, errors.New("queue channel is required")
	}

	c := &Client{
		userID:   userID,
		allotted: allotted,
		ch:       ch,
		metrics:  metrics.NoOpCollector{},
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
	}
	for _, o := range opts {
		o(c)
	}
	if c.notifier == nil {
		c.notifier = notify.New().WithLogger(c.logger)
	}
	c.logger = c.logger.With().Str("user_id", userID).Logger()
	c.current = status.NotQueuedAt(0, c.clock.Now())

	return c, nil
}

// Join asks the queue manager to enqueue this user. On acknowledgment it
// makes sure exactly one snapshot subscription exists for the client's
// lifetime and then emits MembershipRequested.
func (c *Client) Join(ctx context.Context) error {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()

	if c.Enqueued() {
		return ErrDuplicateSubscription
	}

	if err := c.requestMembership(ctx, true); err != nil {
		return fmt.Errorf("join queue: %w", err)
	}

	// Snapshots wait on deriveMu until MembershipRequested is out.
	c.deriveMu.Lock()
	defer c.deriveMu.Unlock()

	if c.sub == nil {
		sub, err := c.ch.SubscribeSnapshots(ctx, c.HandleSnapshot)
		if err != nil {
			c.undoJoin(ctx)
			return fmt.Errorf("subscribe to queue snapshots: %w", err)
		}
		c.sub = sub
	}

	c.setEnqueued(true)
	c.emit(notify.Event{Kind: notify.KindMembershipRequested})

	c.logger.Info().Dur("allotted", c.allotted).Msg("joined queue")
	return nil
}

// undoJoin takes back an acknowledged join whose subscription could not be
// set up, so a retried Join does not enqueue the user twice.
func (c *Client) undoJoin(ctx context.Context) {
	if err := c.requestMembership(context.WithoutCancel(ctx), false); err != nil {
		c.logger.Error().Err(err).Msg("failed to withdraw join after subscribe error")
		return
	}
	c.logger.Warn().Msg("withdrew join after subscribe error")
}

// Leave asks the queue manager to remove this user and emits
// MembershipRemoved on acknowledgment. It is safe to call when not enqueued.
// The snapshot subscription is kept.
func (c *Client) Leave(ctx context.Context) error {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()

	if err := c.requestMembership(ctx, false); err != nil {
		return fmt.Errorf("leave queue: %w", err)
	}

	c.setEnqueued(false)
	c.emit(notify.Event{Kind: notify.KindMembershipRemoved})

	c.logger.Info().Msg("left queue")
	return nil
}

func (c *Client) requestMembership(ctx context.Context, enqueue bool) error {
	allotted := time.Duration(0)
	if enqueue {
		allotted = c.allotted
	}

	start := c.clock.Now()
	err := c.ch.RequestMembership(ctx, c.userID, enqueue, allotted)
	c.metrics.MembershipRequest(enqueue, err == nil, c.clock.Since(start))

	if err != nil {
		c.logger.Error().
			Err(err).
			Bool("enqueue", enqueue).
			Msg("membership request failed")
	}
	return err
}

// HandleSnapshot processes one raw snapshot broadcast. It is the channel's
// snapshot handler but may also be called directly. Malformed snapshots are
// reported as ProtocolError and leave the current status untouched.
func (c *Client) HandleSnapshot(data []byte) {
	c.deriveMu.Lock()
	defer c.deriveMu.Unlock()

	snap, err := wire.DecodeSnapshot(data)
	if err != nil {
		c.metrics.ProtocolError()
		c.logger.Warn().Err(err).Msg("dropping malformed queue snapshot")
		c.emit(notify.Event{Kind: notify.KindProtocolError, Err: err.Error()})
		return
	}

	now := c.clock.Now()
	next := Derive(snap, c.userID, now)

	c.stateMu.Lock()
	prev := c.current
	c.current = next
	c.lastSnapshotAt = now
	firstActivation := next.State == status.Active && !c.hasEverBeenActive
	if firstActivation {
		c.hasEverBeenActive = true
	}
	if next.State == status.NotQueued {
		c.enqueued = false
	}
	c.stateMu.Unlock()

	c.metrics.SnapshotProcessed(next.State)
	if prev.State != next.State {
		c.logger.Info().
			Str("from", string(prev.State)).
			Str("to", string(next.State)).
			Int("position", next.Position).
			Int("queue_length", next.QueueLength).
			Msg("queue state changed")
	}

	c.emit(notify.Event{Kind: notify.KindStatusChanged, Status: &next})
	switch {
	case next.State == status.NotQueued:
		c.emit(notify.Event{Kind: notify.KindMembershipRemoved})
	case firstActivation:
		c.emit(notify.Event{Kind: notify.KindFirstActivation})
	}
}

func (c *Client) emit(e notify.Event) {
	e.ID = uuid.NewString()
	e.UserID = c.userID
	e.Timestamp = c.clock.Now()
	c.metrics.NotificationEmitted(e.Kind)
	c.notifier.Publish(e)
}

func (c *Client) setEnqueued(v bool) {
	c.stateMu.Lock()
	c.enqueued = v
	c.stateMu.Unlock()
}

// Subscribe registers h for this client's notifications
func (c *Client) Subscribe(h notify.Handler) (cancel func()) {
	return c.notifier.Subscribe(h)
}

// Status returns the status derived from the latest well-formed snapshot
func (c *Client) Status() status.Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.current
}

// Enqueued reports whether a join was acknowledged and not yet undone by a
// leave or by a snapshot that no longer lists the user
func (c *Client) Enqueued() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.enqueued
}

// HasBeenActive reports whether FirstActivation has fired
func (c *Client) HasBeenActive() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.hasEverBeenActive
}

// LastSnapshotAt is when the last well-formed snapshot was processed; zero if none
func (c *Client) LastSnapshotAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastSnapshotAt
}

// UserID returns the identity the client was created with
func (c *Client) UserID() string { return c.userID }

// Allotted returns the time requested on join
func (c *Client) Allotted() time.Duration { return c.allotted }

// Close cancels the snapshot subscription. It does not leave the queue.
func (c *Client) Close() error {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Unsubscribe()
	c.sub = nil
	if err != nil {
		return fmt.Errorf("unsubscribe from queue snapshots: %w", err)
	}
	return nil
}
