// Package broadcast fans out pipeline progress events to observers.
// Delivery is best-effort and at-most-once per subscriber; durable state is
// always recoverable from the pipeline store, so clients that miss events
// re-query rather than rely on replay.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

// ProgressEvent describes one pipeline state transition. Events are
// transient: created by the orchestrator, delivered, then discarded.
type ProgressEvent struct {
	PipelineID      uuid.UUID            `json:"pipeline_id"`
	TenantID        uuid.UUID            `json:"tenant_id"`
	Status          store.PipelineStatus `json:"status"`
	CurrentStage    *string              `json:"current_stage,omitempty"`
	CompletedStages []string             `json:"completed_stages"`
	AccumulatedCost money.Amount         `json:"accumulated_cost"`
	Error           *string              `json:"error,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// Broadcaster is the publish side of the fan-out.
type Broadcaster interface {
	Publish(ev ProgressEvent)
}

// subKey scopes a subscription. The tenant id is part of the key, not a
// post-hoc filter: a subscriber can only ever be registered under its own
// tenant, so cross-tenant delivery is structurally impossible.
type subKey struct {
	tenantID   uuid.UUID
	pipelineID uuid.UUID // uuid.Nil subscribes to all of the tenant's pipelines
}

type subscriber struct {
	id uint64

	mu     sync.Mutex
	closed bool
	ch     chan ProgressEvent
}

// deliver hands the event to the subscriber unless it has shut down. The
// closed flag and the send share one lock so a publish can never race a
// close of the channel.
func (s *subscriber) deliver(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// Subscriber is lagging; drop rather than block the pipeline.
	}
}

func (s *subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is the in-process fan-out. Each subscriber gets a buffered channel;
// when a subscriber lags and its buffer fills, events for it are dropped
// rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[subKey][]*subscriber
	nextID uint64
	buffer int
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[subKey][]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers an observer for one tenant, optionally narrowed to a
// single pipeline (pass uuid.Nil for all). The returned cancel func must be
// called to release the subscription; the channel is closed by cancel.
func (h *Hub) Subscribe(tenantID, pipelineID uuid.UUID) (<-chan ProgressEvent, func()) {
	key := subKey{tenantID: tenantID, pipelineID: pipelineID}

	h.mu.Lock()
	h.nextID++
	sub := &subscriber{id: h.nextID, ch: make(chan ProgressEvent, h.buffer)}
	h.subs[key] = append(h.subs[key], sub)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			subs := h.subs[key]
			for i, s := range subs {
				if s.id == sub.id {
					h.subs[key] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			sub.shutdown()
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber whose key matches. Events
// for one pipeline are published by a single writer, so per-subscriber
// ordering follows transition order.
func (h *Hub) Publish(ev ProgressEvent) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, 4)
	targets = append(targets, h.subs[subKey{tenantID: ev.TenantID}]...)
	targets = append(targets, h.subs[subKey{tenantID: ev.TenantID, pipelineID: ev.PipelineID}]...)
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// SubscriberCount returns the number of active subscriptions, for metrics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
