// SPDX-License-Identifier: MIT

// Package hub fans pipeline events out to connected subscribers. Each
// subscriber owns a bounded queue; the hub assigns per-topic sequence
// numbers and pushes under a single publish lock so ordering within a
// topic is total.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/UnknownEngineOfficial/XTeam/internal/event"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
	"github.com/UnknownEngineOfficial/XTeam/internal/metrics"
)

// Stats is a point-in-time snapshot of hub state.
type Stats struct {
	Subscribers   int `json:"subscribers"`
	Topics        int `json:"topics"`
	Subscriptions int `json:"subscriptions"`
}

// Hub routes events from producers to subscriber queues.
type Hub struct {
	// publishMu serializes Publish end to end: sequence assignment,
	// subscriber snapshot and queue pushes happen atomically so two
	// events on the same topic can never arrive reordered at any
	// subscriber.
	publishMu sync.Mutex

	registry *registry

	mu     sync.Mutex
	queues map[string]*Queue
	seq    map[string]uint64

	queueCapacity int
	logger        zerolog.Logger
}

// New creates a hub whose subscriber queues hold queueCapacity events.
func New(queueCapacity int) *Hub {
	return &Hub{
		registry:      newRegistry(),
		queues:        make(map[string]*Queue),
		seq:           make(map[string]uint64),
		queueCapacity: queueCapacity,
		logger:        log.WithComponent("hub"),
	}
}

// Attach registers a subscriber and returns its queue. Attaching an
// already-attached ID returns the existing queue.
func (h *Hub) Attach(id string) *Queue {
	h.mu.Lock()
	defer h.mu.Unlock()

	if q, ok := h.queues[id]; ok {
		return q
	}
	q := NewQueue(h.queueCapacity)
	h.queues[id] = q
	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	return q
}

// Detach removes the subscriber, drops all its topic memberships and
// closes its queue. Idempotent.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	q, ok := h.queues[id]
	if ok {
		delete(h.queues, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	dropped := h.registry.dropAll(id)
	metrics.SubscriptionsActive.Sub(float64(dropped))
	metrics.ConnectionsActive.Dec()
	q.Close()
}

// Join subscribes id to topic. Returns false if id is not attached.
func (h *Hub) Join(id, topic string) bool {
	h.mu.Lock()
	_, attached := h.queues[id]
	h.mu.Unlock()
	if !attached {
		return false
	}
	if h.registry.join(id, topic) {
		metrics.SubscriptionsActive.Inc()
	}
	return true
}

// Leave unsubscribes id from topic. Idempotent.
func (h *Hub) Leave(id, topic string) {
	if h.registry.leave(id, topic) {
		metrics.SubscriptionsActive.Dec()
	}
}

// Topics returns the topics id is currently joined to.
func (h *Hub) Topics(id string) []string {
	return h.registry.topicsOf(id)
}

// Publish assigns ev the next sequence number for its topic and pushes it
// to every subscriber of that topic. The assigned sequence is returned.
func (h *Hub) Publish(ev event.Event) uint64 {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	h.seq[ev.Topic]++
	ev.Seq = h.seq[ev.Topic]
	h.mu.Unlock()

	metrics.IncEventPublished(string(ev.Type))

	for _, id := range h.registry.subscribersOf(ev.Topic) {
		h.mu.Lock()
		q := h.queues[id]
		h.mu.Unlock()
		if q == nil {
			continue
		}
		switch q.Push(ev) {
		case PushDisplaced:
			metrics.IncQueueDrop("displaced")
			h.logger.Warn().
				Str(log.FieldConnectionID, id).
				Str(log.FieldTopic, ev.Topic).
				Uint64(log.FieldSeq, ev.Seq).
				Msg("slow consumer, event displaced")
		case PushRejected:
			metrics.IncQueueDrop("rejected")
			h.logger.Warn().
				Str(log.FieldConnectionID, id).
				Str(log.FieldTopic, ev.Topic).
				Uint64(log.FieldSeq, ev.Seq).
				Str(log.FieldEventType, string(ev.Type)).
				Msg("slow consumer, event dropped")
		}
	}
	return ev.Seq
}

// Stats returns current subscriber and topic counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	subs := len(h.queues)
	h.mu.Unlock()
	topics, total := h.registry.counts()
	return Stats{Subscribers: subs, Topics: topics, Subscriptions: total}
}
