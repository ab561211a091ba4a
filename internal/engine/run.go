package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"contentplane/internal/agent"
	"contentplane/internal/money"
	"contentplane/internal/store"
)

// stageOutcome carries the result of one fully-resolved stage (all retries
// spent or a terminal condition reached).
type stageOutcome struct {
	result *agent.Result
	err    error
}

// run drives a pipeline from queued to a terminal status. It is the only
// writer for its pipeline; all state transitions and cost writes happen here.
func (e *Engine) run(ctx context.Context, pipelineID uuid.UUID, h *runHandle) {
	defer func() {
		p, err := e.store.GetPipelineByID(context.Background(), pipelineID)
		if err == nil {
			e.governor.Release(p.TenantID, pipelineID)
		}
	}()

	p, err := e.store.GetPipelineByID(ctx, pipelineID)
	if err != nil {
		e.logger.Error("run: load pipeline", "pipeline_id", pipelineID, "error", err)
		return
	}
	if p.Status != store.PipelineStatusQueued {
		return
	}

	// Cancelled between admission and startup.
	if reason, cancelled := h.cancelReason(); cancelled {
		e.finalize(p, store.PipelineStatusCancelled, reason)
		return
	}

	var cfg agent.StageConfig
	if len(p.Config) > 0 {
		if err := json.Unmarshal(p.Config, &cfg); err != nil {
			e.finalize(p, store.PipelineStatusFailed, fmt.Sprintf("invalid stage configuration: %v", err))
			return
		}
	}

	next := len(p.CompletedStages)
	if next >= len(p.StageSequence) {
		e.finalize(p, store.PipelineStatusCompleted, "")
		return
	}
	first := p.StageSequence[next]
	if err := e.store.SetRunning(ctx, p.ID, first); err != nil {
		e.logger.Error("run: mark running", "pipeline_id", p.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	p.Status = store.PipelineStatusRunning
	p.StartedAt = &now
	p.CurrentStage = &first
	e.publish(p, &first)

	var priorRef string
	if p.ResultRef != nil {
		priorRef = *p.ResultRef
	}

	for i := next; i < len(p.StageSequence); i++ {
		stage := p.StageSequence[i]

		if reason, cancelled := h.cancelReason(); cancelled {
			e.finalize(p, store.PipelineStatusCancelled, reason)
			return
		}

		last := i == len(p.StageSequence)-1
		out := e.runStage(ctx, p, stage, cfg, priorRef, h, last)
		switch {
		case out.err == nil:
			priorRef = out.result.ResultRef
			continue
		case errors.Is(out.err, ErrCancelled):
			reason, _ := h.cancelReason()
			if reason == "" {
				reason = "cancelled"
			}
			e.finalize(p, store.PipelineStatusCancelled, reason)
			return
		default:
			e.finalize(p, store.PipelineStatusFailed, out.err.Error())
			return
		}
	}

	// The final Advance already set the completed status in the store;
	// reflect it locally and announce.
	p.Status = store.PipelineStatusCompleted
	p.CurrentStage = nil
	e.publish(p, nil)
	e.pipelinesDone.Add(context.Background(), 1, metric.WithAttributes(statusAttr(store.PipelineStatusCompleted)))
	e.logger.Info("pipeline completed",
		"pipeline_id", p.ID, "tenant_id", p.TenantID,
		"stages", len(p.StageSequence), "actual_cost", p.ActualCost.String())
}

// runStage resolves one stage: budget reservation, platform slot, and the
// attempt loop. On success the settlement, stage row, and pipeline advance
// commit in a single transaction and p is updated in place.
func (e *Engine) runStage(ctx context.Context, p *store.Pipeline, stage string, cfg agent.StageConfig, priorRef string, h *runHandle, last bool) stageOutcome {
	kind, err := agent.ParseKind(stage)
	if err != nil {
		return stageOutcome{err: fmt.Errorf("%w: %v", ErrStageFatal, err)}
	}
	def, ok := e.registry.Definition(kind)
	if !ok {
		return stageOutcome{err: fmt.Errorf("%w: no agent registered for %s", ErrStageFatal, stage)}
	}

	ceilingLeft := p.BudgetCeiling - p.ActualCost
	input := agent.Input{
		PipelineID:     p.ID,
		TenantID:       p.TenantID,
		Config:         cfg,
		PriorResultRef: priorRef,
	}
	estimate := def.Agent.EstimateCost(input)
	// The invocation may charge up to the reservation, never the whole
	// remaining ceiling.
	input.SpendLimit = estimate

	decision, err := e.ledger.Reserve(ctx, p.TenantID, estimate, ceilingLeft)
	if err != nil {
		return stageOutcome{err: fmt.Errorf("%w: budget check failed for stage %s: %v", ErrBudgetExceeded, stage, err)}
	}
	if !decision.Allowed {
		e.budgetDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		e.logger.Warn("stage reservation denied",
			"pipeline_id", p.ID, "stage", stage,
			"estimate", estimate.String(), "reason", decision.Reason)
		return stageOutcome{err: fmt.Errorf("%w: stage %s estimated at %s: %s", ErrBudgetExceeded, stage, estimate, decision.Reason)}
	}

	if err := e.governor.AcquireVariant(ctx, kind); err != nil {
		e.releaseReservation(p.TenantID, estimate)
		return stageOutcome{err: ErrCancelled}
	}
	defer e.governor.ReleaseVariant(kind)

	var lastErr error
	for attempt := 1; attempt <= def.RetryLimit; attempt++ {
		if _, cancelled := h.cancelReason(); cancelled {
			e.releaseReservation(p.TenantID, estimate)
			return stageOutcome{err: ErrCancelled}
		}

		startedAt := time.Now().UTC()
		se := &store.StageExecution{
			ID:         uuid.New(),
			PipelineID: p.ID,
			TenantID:   p.TenantID,
			Stage:      stage,
			Status:     store.StageStatusRunning,
			Attempt:    attempt,
			StartedAt:  &startedAt,
		}
		if err := e.store.CreateStageExecution(ctx, nil, se); err != nil {
			e.releaseReservation(p.TenantID, estimate)
			return stageOutcome{err: fmt.Errorf("%w: record stage attempt: %v", ErrStageFatal, err)}
		}

		stageCtx, cancelStage := context.WithTimeout(ctx, def.Timeout)
		spanCtx, span := e.tracer.Start(stageCtx, "stage.execute", trace.WithAttributes(
			attribute.String("pipeline.id", p.ID.String()),
			attribute.String("tenant.id", p.TenantID.String()),
			attribute.String("stage", stage),
			attribute.Int("attempt", attempt),
		))
		start := time.Now()
		result, execErr := e.invoke(spanCtx, def.Agent, input)
		span.End()
		cancelStage()
		e.stageDuration.Record(context.Background(), time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", stage)))

		if _, cancelled := h.cancelReason(); cancelled && ctx.Err() != nil {
			// The invocation was interrupted (or its result arrived after
			// the cancel signal); either way the work is discarded.
			msg := "cancelled before completion"
			if err := e.store.FinishStageExecution(context.Background(), nil, se.ID, store.StageStatusSkipped, 0, nil, &msg); err != nil {
				e.logger.Error("finish cancelled stage row", "stage_execution_id", se.ID, "error", err)
			}
			e.releaseReservation(p.TenantID, estimate)
			return stageOutcome{err: ErrCancelled}
		}

		if execErr == nil {
			if err := e.settleSuccess(p, se, result, estimate, last); err != nil {
				e.releaseReservation(p.TenantID, estimate)
				return stageOutcome{err: fmt.Errorf("%w: persist stage result: %v", ErrStageFatal, err)}
			}
			return stageOutcome{result: result}
		}

		lastErr = execErr
		msg := execErr.Error()
		if err := e.store.FinishStageExecution(context.Background(), nil, se.ID, store.StageStatusFailed, 0, nil, &msg); err != nil {
			e.logger.Error("finish failed stage row", "stage_execution_id", se.ID, "error", err)
		}

		if !def.Agent.IsRetryable(execErr) {
			e.logger.Warn("stage failed",
				"pipeline_id", p.ID, "stage", stage, "attempt", attempt, "error", execErr)
			break
		}
		if attempt == def.RetryLimit {
			break
		}

		backoff := e.cfg.RetryBackoffBase * (1 << (attempt - 1))
		e.logger.Info("retrying stage",
			"pipeline_id", p.ID, "stage", stage,
			"attempt", attempt, "backoff", backoff.String(), "error", execErr)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			e.releaseReservation(p.TenantID, estimate)
			return stageOutcome{err: ErrCancelled}
		}
	}

	e.releaseReservation(p.TenantID, estimate)
	if def.Agent.IsRetryable(lastErr) {
		return stageOutcome{err: fmt.Errorf("%w: stage %s: %v", ErrStageTransient, stage, lastErr)}
	}
	return stageOutcome{err: fmt.Errorf("%w: stage %s: %v", ErrStageFatal, stage, lastErr)}
}

// settleSuccess commits the stage outcome atomically: the succeeded attempt
// row, the ledger entry (with reservation trued up to actual cost), and the
// pipeline advance all land in one transaction.
func (e *Engine) settleSuccess(p *store.Pipeline, se *store.StageExecution, result *agent.Result, reserved money.Amount, last bool) error {
	ctx := context.Background()
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	summary := result.OutputSummary
	if err := e.store.FinishStageExecution(ctx, tx, se.ID, store.StageStatusSucceeded, result.ActualCost, &summary, nil); err != nil {
		return err
	}
	entry := &store.CostLedgerEntry{
		TenantID:    p.TenantID,
		PipelineID:  p.ID,
		Stage:       se.Stage,
		Amount:      result.ActualCost,
		Description: summary,
	}
	if err := e.ledger.Settle(ctx, tx, entry, reserved); err != nil {
		return err
	}

	var nextStage *string
	var resultRef *string
	if last {
		if result.ResultRef != "" {
			resultRef = &result.ResultRef
		}
	} else {
		idx := len(p.CompletedStages) + 1
		nextStage = &p.StageSequence[idx]
	}
	if err := e.store.Advance(ctx, tx, p.ID, se.Stage, nextStage, result.ActualCost, resultRef); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	p.CompletedStages = append(p.CompletedStages, se.Stage)
	p.ActualCost += result.ActualCost
	p.CurrentStage = nextStage
	p.ResultRef = resultRef
	if !last {
		e.publish(p, nextStage)
	}
	return nil
}

// invoke runs the agent and backstops adapters that ignore context: once the
// context fires, the invocation gets the configured grace period to return
// before it is abandoned.
func (e *Engine) invoke(ctx context.Context, a agent.Agent, in agent.Input) (*agent.Result, error) {
	type outcome struct {
		res *agent.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := a.Execute(ctx, in)
		ch <- outcome{res, err}
	}()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
	}
	select {
	case o := <-ch:
		if ctx.Err() != nil && o.err == nil {
			return nil, ctx.Err()
		}
		return o.res, o.err
	case <-time.After(e.cfg.CancelGrace):
		e.logger.Warn("stage invocation abandoned after grace period")
		return nil, ctx.Err()
	}
}

// releaseReservation returns an unspent reservation to the tenant's monthly
// allowance. Failure here only over-counts spend, so it is logged, not fatal.
func (e *Engine) releaseReservation(tenantID uuid.UUID, reserved money.Amount) {
	if err := e.ledger.Release(context.Background(), tenantID, reserved); err != nil {
		e.logger.Error("release reservation", "tenant_id", tenantID, "error", err)
	}
}

// finalize writes the terminal status, announces it, and records the metric.
func (e *Engine) finalize(p *store.Pipeline, status store.PipelineStatus, errMsg string) {
	var msgPtr *string
	if errMsg != "" {
		msgPtr = &errMsg
	}
	if err := e.store.Finalize(context.Background(), nil, p.ID, status, msgPtr); err != nil {
		e.logger.Error("finalize pipeline", "pipeline_id", p.ID, "status", status, "error", err)
	}
	p.Status = status
	p.ErrorMessage = msgPtr
	p.CurrentStage = nil
	e.publish(p, nil)
	e.pipelinesDone.Add(context.Background(), 1, metric.WithAttributes(statusAttr(status)))
	e.logger.Info("pipeline finished",
		"pipeline_id", p.ID, "tenant_id", p.TenantID,
		"status", status, "actual_cost", p.ActualCost.String())
}
