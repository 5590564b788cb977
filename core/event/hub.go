package event

import (
	"sync"
	"time"

	"JamFM/logger"
)

const subscriberBuffer = 64

// Subscription is one dashboard viewer's ordered event feed. The first
// envelope on C is always a snapshot; deltas follow in emission order.
type Subscription struct {
	C         <-chan Envelope
	ch        chan Envelope
	sessionID string
}

// Hub fans session events out to subscribers. Publishing never blocks: a
// subscriber that cannot keep up loses its oldest buffered event, which is
// safe because a reconnect replays a full snapshot.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]bool // sessionID -> subscriptions
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]bool),
	}
}

// Subscribe registers a viewer for a session and seeds its feed with the
// given snapshot. The hub never calls out while holding its own lock, so
// callers may hold the lock that serializes their deltas across this call;
// doing so guarantees the snapshot is consistent and no delta is missed or
// lands ahead of it.
func (h *Hub) Subscribe(sessionID string, snapshot interface{}) *Subscription {
	sub := &Subscription{
		ch:        make(chan Envelope, subscriberBuffer),
		sessionID: sessionID,
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()

	sub.ch <- Envelope{
		SchemaVersion: SchemaVersion,
		EventType:     TypeSnapshot,
		SessionID:     sessionID,
		Timestamp:     time.Now().UnixMilli(),
		Data:          snapshot,
	}

	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Subscription]bool)
	}
	h.subs[sessionID][sub] = true

	logger.Debug("subscriber registered", logger.String("session", sessionID))
	return sub
}

// Unsubscribe removes a viewer and closes its feed.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, sub.sessionID)
	}

	logger.Debug("subscriber unregistered", logger.String("session", sub.sessionID))
}

// Publish delivers an event to every subscriber of the session, in emission
// order per session.
func (h *Hub) Publish(sessionID, eventType string, data interface{}) {
	envelope := Envelope{
		SchemaVersion: SchemaVersion,
		EventType:     eventType,
		SessionID:     sessionID,
		Timestamp:     time.Now().UnixMilli(),
		Data:          data,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- envelope:
		default:
			// Buffer full: drop the oldest event to make room. The
			// subscriber stays behind by one event instead of wedging
			// the publisher.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- envelope:
			default:
			}
		}
	}
}

// SubscriberCount reports how many viewers a session has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
