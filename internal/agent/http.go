package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"contentplane/internal/money"
)

// HTTPAgent invokes an external capability service over HTTP. All five stage
// variants share this adapter; what differs is the endpoint and the cost
// model. The stage's internal behavior (what "topic analysis" actually does)
// belongs to the capability service, not to us.
type HTTPAgent struct {
	kind     Kind
	baseURL  string
	client   *http.Client
	estimate func(Input) money.Amount
}

type invokeRequest struct {
	PipelineID     string       `json:"pipeline_id"`
	TenantID       string       `json:"tenant_id"`
	Config         StageConfig  `json:"config"`
	PriorResultRef string       `json:"prior_result_ref,omitempty"`
	SpendLimit     money.Amount `json:"spend_limit"`
}

type invokeResponse struct {
	OutputSummary string       `json:"output_summary"`
	ResultRef     string       `json:"result_ref"`
	Cost          money.Amount `json:"cost"`
}

// NewHTTPAgent creates an adapter for one stage variant.
// baseURL is the capability service root, e.g. "http://discovery:8081".
func NewHTTPAgent(kind Kind, baseURL string, estimate func(Input) money.Amount) *HTTPAgent {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPAgent{
		kind:    kind,
		baseURL: baseURL,
		client: &http.Client{
			// Individual invocations are bounded by the context the
			// orchestrator passes in, not by a client-level timeout.
			Timeout: 0,
		},
		estimate: estimate,
	}
}

func (a *HTTPAgent) Kind() Kind { return a.kind }

func (a *HTTPAgent) EstimateCost(input Input) money.Amount {
	return a.estimate(input)
}

// Execute posts the input to the capability service and decodes its result.
// The context carries both the per-stage timeout and pipeline cancellation;
// http.Client aborts the request when it fires, which is our cooperative
// cancellation checkpoint.
func (a *HTTPAgent) Execute(ctx context.Context, input Input) (*Result, error) {
	body, err := json.Marshal(invokeRequest{
		PipelineID:     input.PipelineID.String(),
		TenantID:       input.TenantID.String(),
		Config:         input.Config,
		PriorResultRef: input.PriorResultRef,
		SpendLimit:     input.SpendLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stage input: %w", err)
	}

	url := fmt.Sprintf("%s/v1/%s", a.baseURL, a.kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// Context errors pass through untouched so the orchestrator can tell
		// cancellation apart from upstream flakiness.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient(fmt.Errorf("%s request failed: %w", a.kind, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("%s returned status %d: %s", a.kind, resp.StatusCode, respBody))
	default:
		return nil, fmt.Errorf("%s returned status %d: %s", a.kind, resp.StatusCode, respBody)
	}

	var out invokeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", a.kind, err)
	}
	if out.Cost < 0 {
		return nil, fmt.Errorf("%s reported negative cost %s", a.kind, out.Cost)
	}
	if out.Cost > input.SpendLimit {
		return nil, fmt.Errorf("%s reported cost %s above the spend limit %s", a.kind, out.Cost, input.SpendLimit)
	}

	return &Result{
		OutputSummary: out.OutputSummary,
		ResultRef:     out.ResultRef,
		ActualCost:    out.Cost,
	}, nil
}

func (a *HTTPAgent) IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		// Per-stage timeouts are transient upstream slowness.
		return true
	}
	return IsTransient(err)
}

// Per-word generation pricing and flat fees for the other variants. These are
// estimates only; the capability service reports the actual charge.
const (
	discoveryFlatEstimate  = money.Amount(500)  // $0.05
	analysisFlatEstimate   = money.Amount(1500) // $0.15
	generationPerWord      = money.Amount(2)    // $0.0002/word
	complianceFlatEstimate = money.Amount(800)  // $0.08
	publishFlatEstimate    = money.Amount(100)  // $0.01
)

// NewCompetitorDiscovery builds the competitor discovery adapter.
func NewCompetitorDiscovery(baseURL string) *HTTPAgent {
	return NewHTTPAgent(KindCompetitorDiscovery, baseURL, func(in Input) money.Amount {
		// Each keyword fans out to its own search round.
		n := len(in.Config.Keywords)
		if n == 0 {
			n = 1
		}
		return discoveryFlatEstimate * money.Amount(n)
	})
}

// NewTopicAnalysis builds the topic analysis adapter.
func NewTopicAnalysis(baseURL string) *HTTPAgent {
	return NewHTTPAgent(KindTopicAnalysis, baseURL, func(Input) money.Amount {
		return analysisFlatEstimate
	})
}

// NewGeneration builds the content generation adapter. Cost scales with the
// requested word count.
func NewGeneration(baseURL string) *HTTPAgent {
	return NewHTTPAgent(KindGeneration, baseURL, func(in Input) money.Amount {
		words := in.Config.TargetWordCount
		if words <= 0 {
			words = 1000
		}
		return generationPerWord * money.Amount(words)
	})
}

// NewComplianceCheck builds the compliance verification adapter.
func NewComplianceCheck(baseURL string) *HTTPAgent {
	return NewHTTPAgent(KindComplianceCheck, baseURL, func(in Input) money.Amount {
		n := len(in.Config.ComplianceFlags)
		if n == 0 {
			n = 1
		}
		return complianceFlatEstimate * money.Amount(n)
	})
}

// NewPublish builds the publishing adapter.
func NewPublish(baseURL string) *HTTPAgent {
	return NewHTTPAgent(KindPublish, baseURL, func(Input) money.Amount {
		return publishFlatEstimate
	})
}

// DefaultTimeout returns the documented default execution timeout per variant.
func DefaultTimeout(kind Kind) time.Duration {
	switch kind {
	case KindGeneration:
		return 5 * time.Minute
	case KindCompetitorDiscovery, KindTopicAnalysis:
		return 2 * time.Minute
	default:
		return time.Minute
	}
}
