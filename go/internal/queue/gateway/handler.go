package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/rmsqueue/go/internal/queue/channel"
	"github.com/mcdev12/rmsqueue/go/internal/queue/client"
	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
	"github.com/rs/zerolog/log"
)

// QueueClient is the part of the queue client the gateway drives
type QueueClient interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	Status() status.Status
	Subscribe(h notify.Handler) (cancel func())
	UserID() string
	Enqueued() bool
	HasBeenActive() bool
	LastSnapshotAt() time.Time
}

// StatusResponse is the body of GET /api/queue/status
type StatusResponse struct {
	UserID         string        `json:"user_id"`
	Status         status.Status `json:"status"`
	RemainingSec   int           `json:"remaining_sec"`
	Enqueued       bool          `json:"enqueued"`
	HasBeenActive  bool          `json:"has_been_active"`
	LastSnapshotAt *time.Time    `json:"last_snapshot_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterRoutes mounts the queue endpoints on r
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/ws/queue", s.handleWebSocket)
	r.Route("/api/queue", func(r chi.Router) {
		r.Post("/join", s.handleJoin)
		r.Post("/leave", s.handleLeave)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial := func() Frame {
		return statusFrame(s.client.UserID(), s.client.Status(), s.clock.Now())
	}
	if err := s.connectionManager.UpgradeConnection(w, r, initial); err != nil {
		// Upgrade has already written the HTTP error.
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
	}
}

func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Join(r.Context()); err != nil {
		s.writeClientError(w, "join", err)
		return
	}
	s.writeStatus(w, http.StatusAccepted)
}

func (s *Service) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Leave(r.Context()); err != nil {
		s.writeClientError(w, "leave", err)
		return
	}
	s.writeStatus(w, http.StatusAccepted)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Service) writeStatus(w http.ResponseWriter, code int) {
	st := s.client.Status()
	resp := StatusResponse{
		UserID:        s.client.UserID(),
		Status:        st,
		RemainingSec:  int(st.Remaining(s.clock.Now()) / time.Second),
		Enqueued:      s.client.Enqueued(),
		HasBeenActive: s.client.HasBeenActive(),
	}
	if at := s.client.LastSnapshotAt(); !at.IsZero() {
		resp.LastSnapshotAt = &at
	}
	writeJSON(w, code, resp)
}

func (s *Service) writeClientError(w http.ResponseWriter, op string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, client.ErrDuplicateSubscription):
		code = http.StatusConflict
	case channel.IsTransport(err):
		code = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	log.Warn().Err(err).Str("op", op).Int("status", code).Msg("queue membership request failed")
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
