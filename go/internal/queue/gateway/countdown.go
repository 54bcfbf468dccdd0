package gateway

import (
	"context"
	"time"
)

// runCountdown pushes a Countdown frame every interval while the user is in
// the queue. Snapshots stay authoritative; the countdown only fills the gaps
// between them.
func (s *Service) runCountdown(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

func (s *Service) tick() {
	if s.connectionManager.ConnectionCount() == 0 {
		return
	}
	st := s.client.Status()
	if !st.InQueue() {
		return
	}
	s.countdowns.Inc()
	s.connectionManager.Broadcast(countdownFrame(s.client.UserID(), st, s.clock.Now()))
}
