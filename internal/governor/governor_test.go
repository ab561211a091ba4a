package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/agent"
)

func TestAdmit_UnderCap(t *testing.T) {
	g := New(0)
	tenantID := uuid.New()

	if d := g.Admit(uuid.New(), tenantID, 2); d != Admitted {
		t.Errorf("first admit = %s, want admitted", d)
	}
	if d := g.Admit(uuid.New(), tenantID, 2); d != Admitted {
		t.Errorf("second admit = %s, want admitted", d)
	}
	if d := g.Admit(uuid.New(), tenantID, 2); d != Queued {
		t.Errorf("third admit = %s, want queued", d)
	}
	if got := g.Running(tenantID); got != 2 {
		t.Errorf("running = %d, want 2", got)
	}
	if got := g.QueueDepth(); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestRelease_AdmitsFIFO(t *testing.T) {
	g := New(0)
	tenantID := uuid.New()

	var mu sync.Mutex
	var started []uuid.UUID
	startCh := make(chan uuid.UUID, 4)
	g.SetStartFunc(func(id uuid.UUID) {
		mu.Lock()
		started = append(started, id)
		mu.Unlock()
		startCh <- id
	})

	running := uuid.New()
	first := uuid.New()
	second := uuid.New()

	g.Admit(running, tenantID, 1)
	g.Admit(first, tenantID, 1)
	g.Admit(second, tenantID, 1)

	g.Release(tenantID, running)
	select {
	case got := <-startCh:
		if got != first {
			t.Errorf("started %s first, want %s", got, first)
		}
	case <-time.After(time.Second):
		t.Fatal("no pipeline started after release")
	}

	g.Release(tenantID, first)
	select {
	case got := <-startCh:
		if got != second {
			t.Errorf("started %s second, want %s", got, second)
		}
	case <-time.After(time.Second):
		t.Fatal("second pipeline not started after release")
	}
}

func TestCaps_AreTenantScoped(t *testing.T) {
	g := New(0)
	busy := uuid.New()
	other := uuid.New()

	// Fill one tenant's cap.
	g.Admit(uuid.New(), busy, 1)
	if d := g.Admit(uuid.New(), busy, 1); d != Queued {
		t.Fatalf("expected queued for busy tenant, got %s", d)
	}

	// Another tenant is unaffected.
	if d := g.Admit(uuid.New(), other, 1); d != Admitted {
		t.Errorf("other tenant admit = %s, want admitted", d)
	}
}

func TestRemove_QueuedPipeline(t *testing.T) {
	g := New(0)
	tenantID := uuid.New()

	running := uuid.New()
	queued := uuid.New()
	g.Admit(running, tenantID, 1)
	g.Admit(queued, tenantID, 1)

	if !g.Remove(tenantID, queued) {
		t.Error("Remove should find the queued pipeline")
	}
	if g.Remove(tenantID, queued) {
		t.Error("second Remove should return false")
	}
	if g.Remove(tenantID, running) {
		t.Error("Remove of a running pipeline should return false")
	}

	// Nothing left to admit when the running one finishes.
	g.SetStartFunc(func(id uuid.UUID) {
		t.Errorf("unexpected start of %s", id)
	})
	g.Release(tenantID, running)
	time.Sleep(50 * time.Millisecond)
}

func TestVariantCap(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	if err := g.AcquireVariant(ctx, agent.KindGeneration); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := g.AcquireVariant(ctx, agent.KindGeneration); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// Third acquisition blocks until a release.
	acquired := make(chan struct{})
	go func() {
		if err := g.AcquireVariant(ctx, agent.KindGeneration); err != nil {
			t.Errorf("blocked acquire failed: %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	g.ReleaseVariant(agent.KindGeneration)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after release")
	}

	// A different variant has its own pool.
	if err := g.AcquireVariant(ctx, agent.KindPublish); err != nil {
		t.Errorf("other variant acquire failed: %v", err)
	}
}

func TestVariantCap_ContextCancellation(t *testing.T) {
	g := New(1)
	if err := g.AcquireVariant(context.Background(), agent.KindPublish); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.AcquireVariant(ctx, agent.KindPublish)
	}()

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire did not return after cancellation")
	}
}

func TestVariantCap_Unlimited(t *testing.T) {
	g := New(0)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := g.AcquireVariant(ctx, agent.KindTopicAnalysis); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
}
