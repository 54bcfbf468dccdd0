package main

import (
	"fmt"

	"github.com/mcdev12/rmsqueue/go/internal/config"
	"github.com/mcdev12/rmsqueue/go/internal/queue/channel"
	"github.com/mcdev12/rmsqueue/go/internal/queue/client"
	"github.com/mcdev12/rmsqueue/go/internal/queue/gateway"
	"github.com/mcdev12/rmsqueue/go/internal/queue/metrics"
	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Client  *client.Client
	Gateway *gateway.Service
	Metrics *metrics.PrometheusCollector

	conn *nats.Conn
}

func setupServices(cfg *config.Config) (*Services, error) {
	// Transport → Client → Gateway

	ch, conn, err := setupChannel(cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewPrometheusCollector()

	queueClient, err := client.New(cfg.User.ID, cfg.User.StudyTime, ch, client.WithMetrics(collector))
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}
	queueClient.Subscribe(logNotification)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.CountdownInterval = cfg.Gateway.CountdownInterval
	gatewayConfig.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gatewayService := gateway.NewService(gatewayConfig, queueClient, gateway.WithMetricsHandler(collector.Handler()))

	return &Services{
		Client:  queueClient,
		Gateway: gatewayService,
		Metrics: collector,
		conn:    conn,
	}, nil
}

func setupChannel(cfg *config.Config) (channel.Channel, *nats.Conn, error) {
	if cfg.Transport == config.TransportMemory {
		log.Warn().Msg("using in-memory transport, no queue manager is attached")
		return channel.NewMemoryChannel(), nil, nil
	}

	channelConfig := cfg.ChannelConfig()
	nc, err := channel.Connect(channelConfig)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Transport == config.TransportJetStream {
		js, err := channel.NewJetStreamChannel(nc, channelConfig)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return js, nc, nil
	}
	return channel.NewNATSChannel(nc, channelConfig), nc, nil
}

// Close releases the snapshot subscription and drains the bus connection
func (s *Services) Close() {
	if err := s.Client.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close queue client")
	}
	if s.conn != nil {
		if err := s.conn.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}

func logNotification(e notify.Event) {
	ev := log.Info().Str("event", string(e.Kind))
	if e.Status != nil {
		ev = ev.Stringer("status", e.Status)
	}
	if e.Err != "" {
		ev = ev.Str("error", e.Err)
	}
	ev.Msg("queue notification")
}
