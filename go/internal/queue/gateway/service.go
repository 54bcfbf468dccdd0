// Package gateway exposes a queue client to a browser UI. Client
// notifications are pushed over WebSocket and membership is driven through
// a small REST API.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// Service bridges one queue client to any number of UI connections
type Service struct {
	client            QueueClient
	connectionManager *ConnectionManager
	config            Config
	clock             clockwork.Clock
	metricsHandler    http.Handler

	cancelNotify func()
	startedAt    time.Time

	notifications atomic.Uint64
	countdowns    atomic.Uint64
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig  ConnectionConfig
	CountdownInterval time.Duration
	AllowedOrigins    []string
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		CountdownInterval: time.Second,
		AllowedOrigins:    []string{"*"},
	}
}

type Option func(*Service)

// WithClock sets the clock driving the countdown and response timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMetricsHandler mounts h on /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Service) { s.metricsHandler = h }
}

// NewService creates the gateway and subscribes it to the client's
// notifications. Frames produced before Start are buffered.
func NewService(config Config, qc QueueClient, opts ...Option) *Service {
	s := &Service{
		client:            qc,
		connectionManager: NewConnectionManager(config.ConnectionConfig),
		config:            config,
		clock:             clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.clock.Now()

	s.cancelNotify = qc.Subscribe(func(e notify.Event) {
		s.notifications.Inc()
		s.connectionManager.Broadcast(frameFromEvent(e))
	})
	return s
}

// Start runs the connection manager and countdown until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("user_id", s.client.UserID()).Msg("starting queue gateway service")

	go s.connectionManager.Start(ctx)
	if s.config.CountdownInterval > 0 {
		go s.runCountdown(ctx, s.config.CountdownInterval)
	}

	<-ctx.Done()

	log.Info().Msg("queue gateway service shutting down")
	return s.Stop()
}

// Stop detaches the gateway from the client's notifications
func (s *Service) Stop() error {
	if s.cancelNotify != nil {
		s.cancelNotify()
	}
	log.Info().Msg("queue gateway service stopped")
	return nil
}

// Handler returns the gateway's routes behind CORS and the chi middleware stack
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() map[string]interface{} {
	stats := s.connectionManager.Stats()
	stats["service"] = "rmsqueue_gateway"
	stats["user_id"] = s.client.UserID()
	stats["state"] = string(s.client.Status().State)
	stats["notifications_forwarded"] = s.notifications.Load()
	stats["countdown_frames"] = s.countdowns.Load()
	stats["uptime_sec"] = int(s.clock.Since(s.startedAt) / time.Second)
	return stats
}
