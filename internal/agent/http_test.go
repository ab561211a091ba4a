package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/money"
)

func testInput() Input {
	return Input{
		PipelineID: uuid.New(),
		TenantID:   uuid.New(),
		Config: StageConfig{
			Keywords:        []string{"espresso", "grinders"},
			TargetWordCount: 1500,
		},
		SpendLimit: money.FromDollars(1),
	}
}

func TestExecute_Success(t *testing.T) {
	var gotReq invokeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(invokeResponse{
			OutputSummary: "1500 words drafted",
			ResultRef:     "artifact-42",
			Cost:          2500,
		})
	}))
	defer srv.Close()

	a := NewGeneration(srv.URL)
	in := testInput()

	result, err := a.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ActualCost != 2500 {
		t.Errorf("cost = %d, want 2500", result.ActualCost)
	}
	if result.ResultRef != "artifact-42" {
		t.Errorf("result ref = %q, want artifact-42", result.ResultRef)
	}
	if gotReq.SpendLimit != in.SpendLimit {
		t.Errorf("spend limit = %d, want %d", gotReq.SpendLimit, in.SpendLimit)
	}
	if gotReq.PipelineID != in.PipelineID.String() {
		t.Errorf("pipeline id = %q, want %q", gotReq.PipelineID, in.PipelineID)
	}
}

func TestExecute_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewTopicAnalysis(srv.URL)
	_, err := a.Execute(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !a.IsRetryable(err) {
		t.Errorf("5xx should be retryable: %v", err)
	}
}

func TestExecute_ClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad keywords", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewCompetitorDiscovery(srv.URL)
	_, err := a.Execute(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if a.IsRetryable(err) {
		t.Errorf("4xx should be fatal: %v", err)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; without
		// it the client disconnect is never noticed, r.Context() never
		// fires, and the deferred srv.Close() hangs on this handler.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := NewPublish(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Execute(ctx, testInput())
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestEstimates(t *testing.T) {
	in := testInput()

	if got := NewCompetitorDiscovery("x").EstimateCost(in); got != 2*discoveryFlatEstimate {
		t.Errorf("discovery estimate = %d, want %d", got, 2*discoveryFlatEstimate)
	}
	if got := NewGeneration("x").EstimateCost(in); got != 1500*generationPerWord {
		t.Errorf("generation estimate = %d, want %d", got, 1500*generationPerWord)
	}

	// Defaults apply when config is empty.
	empty := Input{}
	if got := NewGeneration("x").EstimateCost(empty); got != 1000*generationPerWord {
		t.Errorf("default generation estimate = %d, want %d", got, 1000*generationPerWord)
	}
	if got := NewComplianceCheck("x").EstimateCost(empty); got != complianceFlatEstimate {
		t.Errorf("default compliance estimate = %d, want %d", got, complianceFlatEstimate)
	}
}

func TestIsRetryable_Timeout(t *testing.T) {
	a := NewGeneration("x")
	if !a.IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
}

func TestExecute_RejectsCostAboveSpendLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(invokeResponse{
			OutputSummary: "1500 words drafted",
			Cost:          money.FromDollars(2), // limit is $1
		})
	}))
	defer srv.Close()

	a := NewGeneration(srv.URL)
	_, err := a.Execute(context.Background(), testInput())
	if err == nil {
		t.Fatal("expected error for cost above the spend limit")
	}
	if a.IsRetryable(err) {
		t.Error("an over-limit charge is not retryable")
	}
}
