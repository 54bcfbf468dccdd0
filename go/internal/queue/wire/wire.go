// Package wire holds the types shared between the queue channel and the
// client. They mirror the messages the remote queue manager exchanges on the bus.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MembershipRequest asks the manager to add or remove a user.
// StudyTime is always whole seconds and is zero when Enqueue is false.
type MembershipRequest struct {
	UserID    string `json:"user_id"`
	Enqueue   bool   `json:"enqueue"`
	StudyTime int64  `json:"study_time"`
}

// MembershipReply is the manager's response to a MembershipRequest
type MembershipReply struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Duration is the manager's {secs} duration encoding
type Duration struct {
	Secs int64 `json:"secs"`
}

// Split breaks the duration into display minutes and seconds
func (d Duration) Split() (minutes, seconds int) {
	return int(d.Secs / 60), int(d.Secs % 60)
}

// Entry is one user's row in a queue snapshot
type Entry struct {
	UserID   string    `json:"user_id"`
	TimeLeft *Duration `json:"time_left"`
	WaitTime *Duration `json:"wait_time"`
}

// Snapshot is a full broadcast of the queue. Index 0 is the active user.
type Snapshot struct {
	Queue []Entry `json:"queue"`
}

// ProtocolError reports a snapshot or reply that does not follow the wire contract
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Cause)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// IsProtocol reports whether err is, or wraps, a ProtocolError
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// DecodeSnapshot parses and validates a raw snapshot broadcast
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw struct {
		Queue *[]Entry `json:"queue"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, &ProtocolError{Reason: "unmarshal snapshot", Cause: err}
	}
	if raw.Queue == nil {
		return Snapshot{}, &ProtocolError{Reason: "snapshot has no queue field"}
	}

	snap := Snapshot{Queue: *raw.Queue}
	for i, e := range snap.Queue {
		if err := e.validate(); err != nil {
			return Snapshot{}, &ProtocolError{Reason: fmt.Sprintf("entry %d", i), Cause: err}
		}
	}
	return snap, nil
}

func (e Entry) validate() error {
	switch {
	case e.UserID == "":
		return errors.New("missing user_id")
	case e.TimeLeft == nil:
		return errors.New("missing time_left")
	case e.WaitTime == nil:
		return errors.New("missing wait_time")
	case e.TimeLeft.Secs < 0:
		return fmt.Errorf("negative time_left %d", e.TimeLeft.Secs)
	case e.WaitTime.Secs < 0:
		return fmt.Errorf("negative wait_time %d", e.WaitTime.Secs)
	}
	return nil
}

// EncodeRequest marshals a membership request
func EncodeRequest(req MembershipRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal membership request: %w", err)
	}
	return data, nil
}

// DecodeReply interprets a reply body. An empty body is an acknowledgment.
func DecodeReply(data []byte) (MembershipReply, error) {
	var reply MembershipReply
	if len(data) == 0 {
		return reply, nil
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return reply, &ProtocolError{Reason: "unmarshal membership reply", Cause: err}
	}
	return reply, nil
}

// Acknowledged reports whether the manager accepted the request
func (r MembershipReply) Acknowledged() bool {
	if r.Error != "" {
		return false
	}
	return r.Success == nil || *r.Success
}
