package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamChannel reads snapshots from a JetStream stream the manager
// publishes into. Membership requests still use core request/reply.
type JetStreamChannel struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

// NewJetStreamChannel creates a JetStream-backed channel on an existing connection
func NewJetStreamChannel(nc *nats.Conn, config NATSConfig) (*JetStreamChannel, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &JetStreamChannel{nc: nc, js: js, config: config}, nil
}

// RequestMembership sends an update_queue request and waits for the reply
func (c *JetStreamChannel) RequestMembership(ctx context.Context, userID string, enqueue bool, allotted time.Duration) error {
	return request(ctx, c.nc, c.config, newMembershipRequest(userID, enqueue, allotted))
}

// SubscribeSnapshots creates an ordered consumer that starts at the next
// published snapshot. Older snapshots in the stream are not replayed.
func (c *JetStreamChannel) SubscribeSnapshots(ctx context.Context, handler SnapshotHandler) (Subscription, error) {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: fmt.Errorf("get stream %s: %w", c.config.StreamName, err)}
	}

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{c.config.SnapshotSubject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: fmt.Errorf("create ordered consumer: %w", err)}
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(msg.Data())
	})
	if err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: fmt.Errorf("start consumer: %w", err)}
	}

	log.Info().
		Str("stream", c.config.StreamName).
		Str("subject", c.config.SnapshotSubject).
		Msg("consuming queue snapshots from JetStream")

	return &consumeSubscription{cc: consumeCtx}, nil
}

type consumeSubscription struct {
	cc jetstream.ConsumeContext
}

func (s *consumeSubscription) Unsubscribe() error {
	s.cc.Stop()
	return nil
}
