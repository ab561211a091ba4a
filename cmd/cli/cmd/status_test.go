package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	started := time.Now().Add(-2 * time.Minute).UTC()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/pipelines/pipe-1":
			current := "generation"
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":               "pipe-1",
				"status":           "running",
				"stage_sequence":   []string{"topic_analysis", "generation"},
				"completed_stages": []string{"topic_analysis"},
				"current_stage":    current,
				"estimated_cost":   "12.50",
				"actual_cost":      "4.00",
				"budget_ceiling":   "25.00",
				"created_at":       started,
				"started_at":       started,
			})
		case r.Method == http.MethodGet && r.URL.Path == "/pipelines/pipe-1/executions":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"executions": []map[string]interface{}{
					{"id": "ex-1", "stage": "topic_analysis", "status": "succeeded", "attempt": 1, "cost": "4.00"},
					{"id": "ex-2", "stage": "generation", "status": "running", "attempt": 1, "cost": "0.00"},
				},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("token", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "pipe-1", "--executions"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "running") {
		t.Errorf("expected status in output, got: %s", output)
	}
	if !strings.Contains(output, "1/2") {
		t.Errorf("expected stage progress in output, got: %s", output)
	}
	if !strings.Contains(output, "generation") {
		t.Errorf("expected current stage in output, got: %s", output)
	}
	if !strings.Contains(output, "topic_analysis") {
		t.Errorf("expected execution table in output, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "pipeline not found"})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("token", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "missing-pipe"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Error (404)") {
		t.Errorf("expected 404 error, got: %s", stdout.String())
	}
}
