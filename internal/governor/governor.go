// Package governor provides admission control for pipeline execution.
// Two independent caps apply: a per-tenant limit on simultaneously running
// pipelines, and a platform-wide limit on concurrent invocations of each
// agent variant, protecting shared downstream capacity.
package governor

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"contentplane/internal/agent"
)

// Decision is the outcome of an admission request.
type Decision string

const (
	// Admitted means the pipeline may start running now.
	Admitted Decision = "admitted"
	// Queued means the tenant is at its concurrency cap; the pipeline waits
	// in FIFO order and is started automatically when a slot frees up.
	// Backpressure is not an error, it is a status.
	Queued Decision = "queued"
)

// StartFunc is invoked (on its own goroutine) when a queued pipeline is
// admitted after a slot frees up.
type StartFunc func(pipelineID uuid.UUID)

type tenantState struct {
	limit   int
	running map[uuid.UUID]bool
	waiting []uuid.UUID
}

// Governor tracks per-tenant running counts and FIFO wait queues. Caps are
// tenant-scoped, so one tenant's backlog can never starve another's.
type Governor struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantState
	start   StartFunc

	variants   map[agent.Kind]*semaphore
	variantCap int
}

// New creates a governor. variantCap bounds platform-wide concurrent
// invocations per agent kind; 0 means unlimited.
func New(variantCap int) *Governor {
	return &Governor{
		tenants:    make(map[uuid.UUID]*tenantState),
		variants:   make(map[agent.Kind]*semaphore),
		variantCap: variantCap,
	}
}

// SetStartFunc registers the callback used to launch queued pipelines when
// they are admitted. Must be called before Admit.
func (g *Governor) SetStartFunc(fn StartFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.start = fn
}

// Admit requests a running slot for the pipeline. limit is the tenant's
// max concurrent pipelines; values below 1 are treated as 1.
func (g *Governor) Admit(pipelineID, tenantID uuid.UUID, limit int) Decision {
	if limit < 1 {
		limit = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tenants[tenantID]
	if !ok {
		ts = &tenantState{running: make(map[uuid.UUID]bool)}
		g.tenants[tenantID] = ts
	}
	ts.limit = limit

	if len(ts.running) < ts.limit {
		ts.running[pipelineID] = true
		return Admitted
	}
	ts.waiting = append(ts.waiting, pipelineID)
	return Queued
}

// Release frees the pipeline's slot after it reaches a terminal state and
// admits the tenant's next queued pipeline, FIFO.
func (g *Governor) Release(tenantID, pipelineID uuid.UUID) {
	g.mu.Lock()

	ts, ok := g.tenants[tenantID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(ts.running, pipelineID)

	var next uuid.UUID
	admitNext := false
	if len(ts.waiting) > 0 && len(ts.running) < ts.limit {
		next = ts.waiting[0]
		ts.waiting = ts.waiting[1:]
		ts.running[next] = true
		admitNext = true
	}
	start := g.start
	g.mu.Unlock()

	if admitNext {
		if start == nil {
			log.Printf("governor: no start func registered, dropping admission of %s", next)
			return
		}
		go start(next)
	}
}

// Remove takes a still-queued pipeline out of the wait queue, for
// cancellation before admission. Returns false if the pipeline was not
// waiting (already admitted or unknown).
func (g *Governor) Remove(tenantID, pipelineID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tenants[tenantID]
	if !ok {
		return false
	}
	for i, id := range ts.waiting {
		if id == pipelineID {
			ts.waiting = append(ts.waiting[:i], ts.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// Running returns the tenant's current running count.
func (g *Governor) Running(tenantID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ts, ok := g.tenants[tenantID]; ok {
		return len(ts.running)
	}
	return 0
}

// QueueDepth returns the total number of waiting pipelines across tenants.
func (g *Governor) QueueDepth() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int64
	for _, ts := range g.tenants {
		n += int64(len(ts.waiting))
	}
	return n
}
