// Package notify is the typed publish/subscribe capability the queue client
// composes in to report membership and status changes to the embedding UI.
package notify

import (
	"sync"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kind is the type of a notification
type Kind string

const (
	KindMembershipRequested Kind = "MembershipRequested"
	KindMembershipRemoved   Kind = "MembershipRemoved"
	KindStatusChanged       Kind = "StatusChanged"
	KindFirstActivation     Kind = "FirstActivation"
	KindProtocolError       Kind = "ProtocolError"
)

// Event is one notification. Status is set for StatusChanged, Err for ProtocolError.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"type"`
	UserID    string         `json:"user_id"`
	Status    *status.Status `json:"status,omitempty"`
	Err       string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler receives notifications
type Handler func(Event)

// Notifier fans events out to subscribed handlers. Publish is synchronous:
// handlers run in subscription order on the publishing goroutine, so the
// order of Publish calls is the order every handler observes.
type Notifier struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscriber
	logger   zerolog.Logger
}

type subscriber struct {
	id      uint64
	handler Handler
}

// New creates a notifier that logs handler failures to the global logger
func New() *Notifier {
	return &Notifier{logger: log.Logger}
}

// WithLogger sets the logger used for handler failures
func (n *Notifier) WithLogger(logger zerolog.Logger) *Notifier {
	n.logger = logger
	return n
}

// Subscribe registers h and returns a function that removes it
func (n *Notifier) Subscribe(h Handler) (cancel func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.handlers = append(n.handlers, subscriber{id: id, handler: h})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.handlers {
		if s.id == id {
			n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every handler. A panicking handler is logged and
// skipped; the remaining handlers still receive the event.
func (n *Notifier) Publish(e Event) {
	n.mu.RLock()
	handlers := make([]subscriber, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	for _, s := range handlers {
		n.deliver(s.handler, e)
	}
}

func (n *Notifier) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Interface("panic", r).
				Str("event_type", string(e.Kind)).
				Msg("notification handler panicked")
		}
	}()
	h(e)
}

// Len returns the number of subscribed handlers
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}
