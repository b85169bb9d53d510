// Package events implements the process-wide event fan-out of C6: one
// bounded queue per subscriber, one broadcast entry point, drop-oldest on
// overflow. Grounded on the teacher's sol.Manager.Subscribe/Unsubscribe
// (bounded channel, non-blocking send with a default-case drop) and the
// sortie SSE hub's per-client registration pattern.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

const defaultQueueSize = 64

// Subscriber is a registered listener for one user session's event
// stream.
type Subscriber struct {
	ID        string
	SessionID string
	ch        chan model.Event
}

// Events returns the subscriber's read-only event channel.
func (s *Subscriber) Events() <-chan model.Event { return s.ch }

// Hub is the process-wide broadcaster.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber for sessionID and returns it along
// with an unsubscribe function.
func (h *Hub) Subscribe(sessionID string) (*Subscriber, func()) {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ch:        make(chan model.Event, defaultQueueSize),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subs, sub.ID)
		h.mu.Unlock()
		close(sub.ch)
	}
	return sub, unsubscribe
}

// Broadcast enqueues an event to every subscriber. A subscriber whose
// queue is full has its oldest entry dropped to make room, protecting
// broadcaster liveness over strict delivery.
func (h *Hub) Broadcast(evt model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// BroadcastTo enqueues an event only to subscribers of one user session,
// used for command-response events the facade emits after a state change.
func (h *Hub) BroadcastTo(sessionID string, evt model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.SessionID != sessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered,
// for diagnostics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
