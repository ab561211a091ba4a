package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"contentplane/pkg/api"
)

// Client handles API calls to the contentplane controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *Client) do(method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// SubmitPipeline sends POST /pipelines to start a new pipeline run.
func (c *Client) SubmitPipeline(req api.SubmitPipelineRequest) (*api.PipelineResponse, error) {
	var result api.PipelineResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("%s/pipelines", c.BaseURL), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPipeline sends GET /pipelines/{id} to retrieve pipeline details.
func (c *Client) GetPipeline(pipelineID string) (*api.PipelineResponse, error) {
	var result api.PipelineResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("%s/pipelines/%s", c.BaseURL, pipelineID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPipelines sends GET /pipelines to list the tenant's pipelines.
func (c *Client) ListPipelines(limit, offset int) ([]api.PipelineResponse, error) {
	endpoint := fmt.Sprintf("%s/pipelines?limit=%d&offset=%d", c.BaseURL, limit, offset)
	var result api.ListPipelinesResponse
	if err := c.do(http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Pipelines, nil
}

// ListStageExecutions sends GET /pipelines/{id}/executions to list stage attempts.
func (c *Client) ListStageExecutions(pipelineID string) ([]api.StageExecutionResponse, error) {
	var result api.ListStageExecutionsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("%s/pipelines/%s/executions", c.BaseURL, pipelineID), nil, &result); err != nil {
		return nil, err
	}
	return result.Executions, nil
}

// CancelPipeline sends POST /pipelines/{id}/cancel to request cancellation.
func (c *Client) CancelPipeline(pipelineID, reason string) error {
	req := api.CancelPipelineRequest{Reason: reason}
	return c.do(http.MethodPost, fmt.Sprintf("%s/pipelines/%s/cancel", c.BaseURL, pipelineID), req, nil)
}

// ListLedger sends GET /ledger to retrieve the tenant's charge records.
func (c *Client) ListLedger(limit, offset int) ([]api.LedgerEntryResponse, error) {
	endpoint := fmt.Sprintf("%s/ledger?limit=%d&offset=%d", c.BaseURL, limit, offset)
	var result api.ListLedgerResponse
	if err := c.do(http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// CreateTenant sends POST /tenants to provision a tenant. The client's
// token must be the controller admin secret, not a tenant API key.
func (c *Client) CreateTenant(req api.CreateTenantRequest) (*api.CreateTenantResponse, error) {
	var result api.CreateTenantResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("%s/tenants", c.BaseURL), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StreamEvents opens GET /events as a long-lived SSE stream. The caller
// owns the returned body and must close it.
func (c *Client) StreamEvents(pipelineID string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/events", c.BaseURL)
	if pipelineID != "" {
		endpoint = fmt.Sprintf("%s?pipeline_id=%s", endpoint, pipelineID)
	}

	httpReq, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Accept", "text/event-stream")

	// No timeout: the stream stays open until the caller closes it.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return resp.Body, nil
}
