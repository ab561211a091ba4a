package engine

import "errors"

// Error taxonomy surfaced to callers and persisted on failed pipelines.
// Raw errors from agent implementations are translated into one of these at
// the engine boundary; they never leak into the event stream.
var (
	// ErrInvalidConfiguration rejects a submission whose stage sequence
	// references an unknown, duplicated, reordered, or disabled stage. The
	// pipeline never enters the state machine.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBudgetExhausted rejects a submission when the tenant's remaining
	// monthly budget is already zero.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrBudgetExceeded fails a running pipeline when a stage's estimated
	// cost would push accumulated cost past the run's ceiling or the
	// tenant's monthly allowance. No partial charge is made for the stage.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrCancelled is the distinct terminal outcome of a user-initiated
	// cancellation. Not an error in the taxonomy sense, but a non-success
	// result of a run.
	ErrCancelled = errors.New("cancelled")

	// ErrNotCancellable is returned by Cancel when the pipeline is already
	// terminal.
	ErrNotCancellable = errors.New("pipeline is not cancellable")

	// ErrStageTransient wraps a retryable stage failure that exhausted its
	// retry budget. The pipeline still fails; the sentinel records that the
	// cause was upstream flakiness, not a bad request.
	ErrStageTransient = errors.New("stage failed after retries")

	// ErrStageFatal wraps a non-retryable stage failure.
	ErrStageFatal = errors.New("stage failed")
)
