// Package agent defines the uniform contract every content-processing stage
// implements, plus the registry that orders stages into pipeline recipes.
// The orchestrator only ever calls the contract methods; it never
// special-cases a variant, which is what lets tenants reorder, extend, or
// disable stages without touching orchestration logic.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"contentplane/internal/money"
)

// Kind identifies one of the content-processing stage variants.
type Kind string

const (
	KindCompetitorDiscovery Kind = "competitor_discovery"
	KindTopicAnalysis       Kind = "topic_analysis"
	KindGeneration          Kind = "generation"
	KindComplianceCheck     Kind = "compliance_check"
	KindPublish             Kind = "publish"
)

// StageConfig carries the tenant-supplied parameters for a run. Individual
// stages read only the fields they care about.
type StageConfig struct {
	Keywords        []string          `json:"keywords,omitempty"`
	TargetWordCount int               `json:"target_word_count,omitempty"`
	ComplianceFlags []string          `json:"compliance_flags,omitempty"`
	PublishTarget   string            `json:"publish_target,omitempty"`
	Overrides       map[string]string `json:"overrides,omitempty"`
}

// Input is what the orchestrator hands a stage on invocation.
type Input struct {
	PipelineID uuid.UUID
	TenantID   uuid.UUID
	Config     StageConfig
	// PriorResultRef points at the artifact produced by the previous stage,
	// empty for the first stage of a run.
	PriorResultRef string
	// SpendLimit is the budget reservation for this invocation. A reported
	// cost above it is rejected as a fatal stage error.
	SpendLimit money.Amount
}

// Result is a stage's outcome.
type Result struct {
	OutputSummary string
	ResultRef     string
	ActualCost    money.Amount
}

// Agent is the contract every stage variant satisfies.
type Agent interface {
	// Kind returns the stage variant this agent implements.
	Kind() Kind

	// EstimateCost predicts the charge for executing with the given input.
	// The orchestrator reserves this amount against the budget before
	// invoking Execute.
	EstimateCost(input Input) money.Amount

	// Execute performs the stage's work. Implementations must honor ctx
	// cancellation at their safe checkpoints.
	Execute(ctx context.Context, input Input) (*Result, error)

	// IsRetryable classifies an Execute error as transient or fatal.
	IsRetryable(err error) bool
}

// TransientError marks a failure as retryable. Adapters wrap transient
// upstream conditions (timeouts, 5xx, throttling) in it so the orchestrator's
// retry loop can distinguish them from fatal input errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ParseKind validates a stage identifier string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCompetitorDiscovery, KindTopicAnalysis, KindGeneration, KindComplianceCheck, KindPublish:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}
