package events

import (
	"testing"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

func TestBroadcastOrderPerSubscriber(t *testing.T) {
	h := NewHub()
	sub, unsubscribe := h.Subscribe("sess1")
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		h.Broadcast(model.Event{Type: "alarm_event", Data: i})
	}
	for i := 0; i < 5; i++ {
		evt := <-sub.Events()
		if evt.Data.(int) != i {
			t.Errorf("event %d: data = %v, want %d", i, evt.Data, i)
		}
	}
}

func TestBroadcastDropsOldestOnOverflow(t *testing.T) {
	h := NewHub()
	sub, unsubscribe := h.Subscribe("sess1")
	defer unsubscribe()

	for i := 0; i < defaultQueueSize+10; i++ {
		h.Broadcast(model.Event{Type: "alarm_event", Data: i})
	}
	first := <-sub.Events()
	if first.Data.(int) == 0 {
		t.Error("expected the oldest events to have been dropped")
	}
}

func TestBroadcastToFiltersBySession(t *testing.T) {
	h := NewHub()
	subA, unsubA := h.Subscribe("sessA")
	defer unsubA()
	subB, unsubB := h.Subscribe("sessB")
	defer unsubB()

	h.BroadcastTo("sessA", model.Event{Type: "state_changed"})

	select {
	case evt := <-subA.Events():
		if evt.Type != "state_changed" {
			t.Errorf("type = %q, want state_changed", evt.Type)
		}
	default:
		t.Error("expected subA to receive the event")
	}

	select {
	case <-subB.Events():
		t.Error("subB should not have received a sessA-scoped event")
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe("sess1")
	unsubscribe()
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after unsubscribe", h.SubscriberCount())
	}
}
