package testsupport

import (
	"context"
	"sync"

	"archivist/internal/config"
	"archivist/internal/notifications"
)

// Notification is one recorded notifier call.
type Notification struct {
	RoomID  int64
	Event   notifications.Event
	Payload notifications.Payload
}

// FakeNotifier records published notifications.
type FakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (f *FakeNotifier) Publish(_ context.Context, room config.Room, event notifications.Event, payload notifications.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Notification{RoomID: room.ID, Event: event, Payload: payload})
	return nil
}

// Sent returns a copy of the recorded notifications.
func (f *FakeNotifier) Sent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.sent...)
}

// Events returns the recorded event names in order.
func (f *FakeNotifier) Events() []notifications.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifications.Event, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Event)
	}
	return out
}
