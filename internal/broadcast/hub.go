package broadcast

import (
	"context"
	"sync"
)

// Sender is the minimal interface the hub needs from a subscriber: the
// ability to push one event toward the connected client.
type Sender interface {
	Send(Event) error
}

// Broker is the group-broadcast service: membership add/remove plus
// group-send of an event to every current member. Delivery is
// at-least-once per still-subscribed member with no ordering guarantee
// across publishers.
type Broker interface {
	Subscribe(ctx context.Context, group string, s Sender) (int64, error)
	Unsubscribe(group string, id int64)
	Publish(ctx context.Context, group string, ev Event) error
}

// Hub is the in-process broker. It maps group keys to the currently
// subscribed senders so events can be pushed to every live connection
// in the group. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[int64]Sender
	nextID int64
}

// NewHub creates a new hub instance.
func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[int64]Sender)}
}

// Subscribe adds a sender to the group and returns a subscription id
// used to unsubscribe when the connection closes.
func (h *Hub) Subscribe(_ context.Context, group string, s Sender) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[int64]Sender)
	}

	h.nextID++
	id := h.nextID
	h.groups[group][id] = s
	return id, nil
}

// Unsubscribe removes a previously registered subscription. Idempotent:
// unknown ids and groups are ignored.
func (h *Hub) Unsubscribe(group string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.groups[group]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.groups, group)
	}
}

// Publish sends the event to every sender currently subscribed to the
// group. Delivery is best-effort: a failing sender does not stop the
// others, and failed subscriptions are dropped so broken connections
// don't linger in the hub. A group with no subscribers is a no-op.
func (h *Hub) Publish(_ context.Context, group string, ev Event) error {
	h.mu.RLock()
	subs := h.groups[group]
	targets := make(map[int64]Sender, len(subs))
	for id, s := range subs {
		targets[id] = s
	}
	h.mu.RUnlock()

	var firstErr error
	var failedIDs []int64

	for id, s := range targets {
		if err := s.Send(ev); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failedIDs = append(failedIDs, id)
		}
	}

	for _, id := range failedIDs {
		h.Unsubscribe(group, id)
	}

	return firstErr
}

// Subscribers returns how many senders the group currently has.
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
