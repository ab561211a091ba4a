package governor

import (
	"context"
	"sync"

	"contentplane/internal/agent"
)

// semaphore is a context-aware counting limiter. A limit of 0 means
// unlimited: Acquire always succeeds immediately.
type semaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	acquired int
}

func newSemaphore(limit int) *semaphore {
	if limit < 0 {
		limit = 0
	}
	s := &semaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a slot is available or the context is cancelled.
func (s *semaphore) acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit == 0 {
		s.acquired++
		return nil
	}

	// Broadcast on context cancellation so blocked waiters wake up and can
	// return the context error.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-done:
		}
	}()

	for s.acquired >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.acquired++
	return nil
}

func (s *semaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired > 0 {
		s.acquired--
	}
	s.cond.Signal()
}

// AcquireVariant blocks until a platform-wide invocation slot for the given
// agent kind is available, or the context is cancelled.
func (g *Governor) AcquireVariant(ctx context.Context, kind agent.Kind) error {
	return g.variantSem(kind).acquire(ctx)
}

// ReleaseVariant frees an invocation slot for the given agent kind.
func (g *Governor) ReleaseVariant(kind agent.Kind) {
	g.variantSem(kind).release()
}

func (g *Governor) variantSem(kind agent.Kind) *semaphore {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.variants[kind]
	if !ok {
		s = newSemaphore(g.variantCap)
		g.variants[kind] = s
	}
	return s
}
