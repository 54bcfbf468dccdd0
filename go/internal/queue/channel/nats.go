package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/wire"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection and subject settings for the NATS transports
type NATSConfig struct {
	URL             string
	RequestSubject  string
	SnapshotSubject string
	StreamName      string // only used by the JetStream transport
	RequestTimeout  time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		RequestSubject:  "rms.update_queue",
		SnapshotSubject: "rms.queue",
		StreamName:      "RMS_QUEUE",
		RequestTimeout:  5 * time.Second,
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
	}
}

// Connect opens a NATS connection with logging reconnect handlers
func Connect(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("rmsqueue-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSChannel talks to the queue manager over core NATS: request/reply for
// membership and a plain subscription for snapshots.
type NATSChannel struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSChannel creates a channel on an existing connection
func NewNATSChannel(nc *nats.Conn, config NATSConfig) *NATSChannel {
	return &NATSChannel{nc: nc, config: config}
}

// RequestMembership sends an update_queue request and waits for the reply
func (c *NATSChannel) RequestMembership(ctx context.Context, userID string, enqueue bool, allotted time.Duration) error {
	return request(ctx, c.nc, c.config, newMembershipRequest(userID, enqueue, allotted))
}

// SubscribeSnapshots subscribes to snapshot broadcasts. Core NATS delivers
// messages for one subscription sequentially, which gives the ordering guarantee.
func (c *NATSChannel) SubscribeSnapshots(ctx context.Context, handler SnapshotHandler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: err}
	}

	sub, err := c.nc.Subscribe(c.config.SnapshotSubject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, &TransportError{Op: "subscribe", Cause: err}
	}

	log.Debug().
		Str("subject", c.config.SnapshotSubject).
		Msg("subscribed to queue snapshots")

	return sub, nil
}

func request(ctx context.Context, nc *nats.Conn, cfg NATSConfig, req wire.MembershipRequest) error {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, cfg.RequestSubject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return &TransportError{Op: "request", Cause: fmt.Errorf("no queue manager on %s: %w", cfg.RequestSubject, err)}
		}
		return &TransportError{Op: "request", Cause: err}
	}

	reply, err := wire.DecodeReply(msg.Data)
	if err != nil {
		return &TransportError{Op: "request", Cause: err}
	}
	if !reply.Acknowledged() {
		if reply.Error != "" {
			return &TransportError{Op: "request", Cause: fmt.Errorf("%w: %s", ErrRejected, reply.Error)}
		}
		return &TransportError{Op: "request", Cause: ErrRejected}
	}

	log.Debug().
		Str("subject", cfg.RequestSubject).
		Str("user_id", req.UserID).
		Bool("enqueue", req.Enqueue).
		Int64("study_time", req.StudyTime).
		Msg("membership request acknowledged")

	return nil
}
