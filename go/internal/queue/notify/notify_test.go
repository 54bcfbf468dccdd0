package notify

import (
	"testing"
)

func TestPublishOrder(t *testing.T) {
	n := New()

	var got []string
	n.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Kind)) })
	n.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Kind)) })

	n.Publish(Event{Kind: KindStatusChanged})
	n.Publish(Event{Kind: KindFirstActivation})

	want := []string{
		"a:StatusChanged", "b:StatusChanged",
		"a:FirstActivation", "b:FirstActivation",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCancel(t *testing.T) {
	n := New()

	count := 0
	cancel := n.Subscribe(func(Event) { count++ })
	n.Publish(Event{Kind: KindMembershipRequested})

	cancel()
	cancel() // second call is a no-op
	n.Publish(Event{Kind: KindMembershipRemoved})

	if count != 1 {
		t.Fatalf("handler called %d times, want 1", count)
	}
	if n.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", n.Len())
	}
}

func TestPanickingHandlerDoesNotBreakDelivery(t *testing.T) {
	n := New()

	n.Subscribe(func(Event) { panic("boom") })
	delivered := 0
	n.Subscribe(func(Event) { delivered++ })

	n.Publish(Event{Kind: KindStatusChanged})
	n.Publish(Event{Kind: KindStatusChanged})

	if delivered != 2 {
		t.Fatalf("second handler received %d events, want 2", delivered)
	}
}
