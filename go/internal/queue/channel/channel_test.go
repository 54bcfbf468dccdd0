package channel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewMembershipRequest_Seconds(t *testing.T) {
	req := newMembershipRequest("u1", true, 15*time.Minute)
	if req.StudyTime != 900 {
		t.Fatalf("study_time = %d, want 900 seconds", req.StudyTime)
	}

	req = newMembershipRequest("u1", false, 15*time.Minute)
	if req.StudyTime != 0 {
		t.Fatalf("leave must carry study_time 0, got %d", req.StudyTime)
	}
	if req.Enqueue {
		t.Fatal("leave request should not enqueue")
	}
}

func TestMemoryChannel_RequestMembership(t *testing.T) {
	c := NewMemoryChannel()

	if err := c.RequestMembership(context.Background(), "u1", true, 90*time.Second); err != nil {
		t.Fatalf("RequestMembership: %v", err)
	}
	if err := c.RequestMembership(context.Background(), "u1", false, 90*time.Second); err != nil {
		t.Fatalf("RequestMembership: %v", err)
	}

	reqs := c.Requests()
	if len(reqs) != 2 {
		t.Fatalf("want 2 requests, got %d", len(reqs))
	}
	if !reqs[0].Enqueue || reqs[0].StudyTime != 90 {
		t.Errorf("unexpected join request: %+v", reqs[0])
	}
	if reqs[1].Enqueue || reqs[1].StudyTime != 0 {
		t.Errorf("unexpected leave request: %+v", reqs[1])
	}
}

func TestMemoryChannel_FailRequests(t *testing.T) {
	c := NewMemoryChannel()
	cause := errors.New("bus down")
	c.FailRequests(cause)

	err := c.RequestMembership(context.Background(), "u1", true, time.Minute)
	if !IsTransport(err) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("TransportError should wrap the cause, got %v", err)
	}
	if len(c.Requests()) != 0 {
		t.Fatal("failed request must not be recorded")
	}

	c.FailRequests(nil)
	if err := c.RequestMembership(context.Background(), "u1", true, time.Minute); err != nil {
		t.Fatalf("RequestMembership after recovery: %v", err)
	}
}

func TestMemoryChannel_CancelledContext(t *testing.T) {
	c := NewMemoryChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.RequestMembership(ctx, "u1", true, time.Minute); !IsTransport(err) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if _, err := c.SubscribeSnapshots(ctx, func([]byte) {}); !IsTransport(err) {
		t.Fatalf("want TransportError, got %v", err)
	}
}

func TestMemoryChannel_BroadcastOrderAndUnsubscribe(t *testing.T) {
	c := NewMemoryChannel()

	var first, second []string
	sub1, err := c.SubscribeSnapshots(context.Background(), func(b []byte) { first = append(first, string(b)) })
	if err != nil {
		t.Fatalf("SubscribeSnapshots: %v", err)
	}
	if _, err := c.SubscribeSnapshots(context.Background(), func(b []byte) { second = append(second, string(b)) }); err != nil {
		t.Fatalf("SubscribeSnapshots: %v", err)
	}
	if c.Subscribers() != 2 {
		t.Fatalf("want 2 subscribers, got %d", c.Subscribers())
	}

	c.Broadcast([]byte("s1"))
	c.Broadcast([]byte("s2"))

	if err := sub1.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	c.Broadcast([]byte("s3"))

	if len(first) != 2 || first[0] != "s1" || first[1] != "s2" {
		t.Errorf("first subscriber got %v", first)
	}
	if len(second) != 3 || second[2] != "s3" {
		t.Errorf("second subscriber got %v", second)
	}
	if c.Subscribers() != 1 {
		t.Fatalf("want 1 subscriber after unsubscribe, got %d", c.Subscribers())
	}
}
