package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
)

// FrameTypeCountdown is a gateway-only frame carrying a local countdown
// estimate between snapshots. It is not a client notification.
const FrameTypeCountdown = "Countdown"

// Frame is the JSON message pushed to WebSocket clients
type Frame struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	UserID       string         `json:"user_id"`
	Status       *status.Status `json:"status,omitempty"`
	RemainingSec *int           `json:"remaining_sec,omitempty"`
	Error        string         `json:"error,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// frameFromEvent converts a client notification to a WebSocket frame
func frameFromEvent(e notify.Event) Frame {
	return Frame{
		ID:        e.ID,
		Type:      string(e.Kind),
		UserID:    e.UserID,
		Status:    e.Status,
		Error:     e.Err,
		Timestamp: e.Timestamp,
	}
}

// statusFrame builds a StatusChanged frame for state sync on connect
func statusFrame(userID string, s status.Status, now time.Time) Frame {
	return Frame{
		ID:        uuid.NewString(),
		Type:      string(notify.KindStatusChanged),
		UserID:    userID,
		Status:    &s,
		Timestamp: now,
	}
}

func countdownFrame(userID string, s status.Status, now time.Time) Frame {
	remaining := int(s.Remaining(now) / time.Second)
	return Frame{
		ID:           uuid.NewString(),
		Type:         FrameTypeCountdown,
		UserID:       userID,
		Status:       &s,
		RemainingSec: &remaining,
		Timestamp:    now,
	}
}
