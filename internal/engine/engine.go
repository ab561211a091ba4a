package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"contentplane/internal/agent"
	"contentplane/internal/broadcast"
	"contentplane/internal/governor"
	"contentplane/internal/ledger"
	"contentplane/internal/money"
	"contentplane/internal/store"
)

const (
	defaultRetryBackoffBase = 10 * time.Second
	defaultCancelGrace      = 10 * time.Second
)

// Config tunes run-loop timing. Zero values fall back to production defaults.
type Config struct {
	// RetryBackoffBase is the delay before the first retry of a transient
	// stage failure; it doubles on each subsequent attempt.
	RetryBackoffBase time.Duration

	// CancelGrace bounds how long a cancelled stage invocation is allowed
	// to wind down before the engine abandons it.
	CancelGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = defaultCancelGrace
	}
	return c
}

// SubmitRequest describes a pipeline submission after transport decoding.
// Either Stages or Recipe must be set; Stages wins when both are.
type SubmitRequest struct {
	Stages        []string
	Recipe        string
	BudgetCeiling money.Amount
	Config        agent.StageConfig
}

// Engine sequences content stages for submitted pipelines: it checks budgets
// before each stage, drives agent invocations with retry and timeout, records
// costs, and publishes progress events. Each pipeline has exactly one writer
// goroutine for its lifetime.
type Engine struct {
	store       store.Store
	registry    *agent.Registry
	ledger      *ledger.Ledger
	governor    *governor.Governor
	broadcaster broadcast.Broadcaster
	cfg         Config
	logger      *slog.Logger

	tracer        trace.Tracer
	stageDuration metric.Float64Histogram
	pipelinesDone metric.Int64Counter
	budgetDenials metric.Int64Counter

	mu   sync.Mutex
	runs map[uuid.UUID]*runHandle

	wg sync.WaitGroup
}

// runHandle tracks a live run goroutine so Cancel can reach it.
type runHandle struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	reason    string
}

func (h *runHandle) markCancelled(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cancelled {
		h.cancelled = true
		h.reason = reason
	}
}

func (h *runHandle) cancelReason() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason, h.cancelled
}

func New(s store.Store, reg *agent.Registry, led *ledger.Ledger, gov *governor.Governor, b broadcast.Broadcaster, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("contentplane-engine")
	stageDuration, _ := meter.Float64Histogram("contentplane.stage.duration",
		metric.WithDescription("Stage execution duration in seconds"),
		metric.WithUnit("s"))
	pipelinesDone, _ := meter.Int64Counter("contentplane.pipelines.finished",
		metric.WithDescription("Pipelines reaching a terminal status"))
	budgetDenials, _ := meter.Int64Counter("contentplane.budget.denials",
		metric.WithDescription("Stage reservations denied by budget checks"))

	e := &Engine{
		store:         s,
		registry:      reg,
		ledger:        led,
		governor:      gov,
		broadcaster:   b,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		tracer:        otel.Tracer("contentplane-engine"),
		stageDuration: stageDuration,
		pipelinesDone: pipelinesDone,
		budgetDenials: budgetDenials,
		runs:          make(map[uuid.UUID]*runHandle),
	}
	gov.SetStartFunc(e.startRun)
	return e
}

// Submit validates the request, persists a queued pipeline, and asks the
// governor for an execution slot. If the tenant is under its concurrency cap
// the run starts immediately; otherwise the pipeline waits in queue order.
func (e *Engine) Submit(ctx context.Context, tenantID uuid.UUID, req SubmitRequest) (*store.Pipeline, error) {
	stages := req.Stages
	if len(stages) == 0 && req.Recipe != "" {
		resolved, ok := e.registry.ResolveRecipe(req.Recipe)
		if !ok {
			return nil, fmt.Errorf("%w: unknown recipe %q", ErrInvalidConfiguration, req.Recipe)
		}
		stages = resolved
	}
	if err := e.registry.ValidateSequence(tenantID, stages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if req.BudgetCeiling < 0 {
		return nil, fmt.Errorf("%w: budget ceiling must not be negative", ErrInvalidConfiguration)
	}

	tenant, err := e.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	remaining := tenant.MonthlyRemaining()
	if remaining <= 0 {
		return nil, ErrBudgetExhausted
	}
	ceiling := req.BudgetCeiling
	if ceiling == 0 {
		ceiling = remaining
	}

	cfgBytes, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	estimate := e.estimateTotal(tenantID, stages, req.Config)

	p := &store.Pipeline{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Status:        store.PipelineStatusQueued,
		StageSequence: stages,
		Config:        cfgBytes,
		EstimatedCost: estimate,
		BudgetCeiling: ceiling,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreatePipeline(ctx, nil, p); err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	e.publish(p, nil)

	decision := e.governor.Admit(p.ID, tenantID, tenant.MaxConcurrent)
	if decision == governor.Admitted {
		e.startRun(p.ID)
	} else {
		e.logger.Info("pipeline queued by governor",
			"pipeline_id", p.ID, "tenant_id", tenantID,
			"queue_depth", e.governor.QueueDepth())
	}
	return p, nil
}

// Cancel stops a pipeline. Queued pipelines are removed from the governor and
// finalized immediately; running ones are signalled and wound down by their
// run goroutine within the grace period.
func (e *Engine) Cancel(ctx context.Context, pipelineID uuid.UUID, reason string) error {
	p, err := e.store.GetPipelineByID(ctx, pipelineID)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return ErrNotCancellable
	}
	if reason == "" {
		reason = "cancelled by user"
	}

	e.mu.Lock()
	h, running := e.runs[pipelineID]
	e.mu.Unlock()
	if running {
		h.markCancelled(reason)
		h.cancel()
		return nil
	}

	// Still waiting in the governor queue: no stage ever started, so there
	// is nothing to unwind.
	if e.governor.Remove(p.TenantID, pipelineID) {
		msg := reason
		if err := e.store.Finalize(ctx, nil, pipelineID, store.PipelineStatusCancelled, &msg); err != nil {
			return fmt.Errorf("finalize cancelled pipeline: %w", err)
		}
		p.Status = store.PipelineStatusCancelled
		p.ErrorMessage = &msg
		e.publish(p, nil)
		e.pipelinesDone.Add(ctx, 1, metric.WithAttributes(statusAttr(store.PipelineStatusCancelled)))
		return nil
	}

	// Admitted but the run goroutine has not registered yet; retry briefly.
	for i := 0; i < 20; i++ {
		time.Sleep(5 * time.Millisecond)
		e.mu.Lock()
		h, running = e.runs[pipelineID]
		e.mu.Unlock()
		if running {
			h.markCancelled(reason)
			h.cancel()
			return nil
		}
	}
	return ErrNotCancellable
}

// Close waits for in-flight runs to finish, up to the context deadline.
// Runs are not interrupted; a restart-safe store would resume them instead.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) startRun(pipelineID uuid.UUID) {
	runCtx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel}
	e.mu.Lock()
	e.runs[pipelineID] = h
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.runs, pipelineID)
			e.mu.Unlock()
			cancel()
		}()
		e.run(runCtx, pipelineID, h)
	}()
}

func (e *Engine) estimateTotal(tenantID uuid.UUID, stages []string, cfg agent.StageConfig) money.Amount {
	var total money.Amount
	for _, s := range stages {
		kind, err := agent.ParseKind(s)
		if err != nil {
			continue
		}
		def, ok := e.registry.Definition(kind)
		if !ok {
			continue
		}
		total += def.Agent.EstimateCost(agent.Input{TenantID: tenantID, Config: cfg})
	}
	return total
}

// publish emits a progress event reflecting the pipeline's current in-memory
// state. Event loss is acceptable; the store remains the source of truth.
func (e *Engine) publish(p *store.Pipeline, currentStage *string) {
	ev := broadcast.ProgressEvent{
		PipelineID:      p.ID,
		TenantID:        p.TenantID,
		Status:          p.Status,
		CurrentStage:    currentStage,
		CompletedStages: append([]string(nil), p.CompletedStages...),
		AccumulatedCost: p.ActualCost,
		Error:           p.ErrorMessage,
		Timestamp:       time.Now().UTC(),
	}
	e.broadcaster.Publish(ev)
}

func statusAttr(s store.PipelineStatus) attribute.KeyValue {
	return attribute.String("status", string(s))
}
