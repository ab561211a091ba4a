package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/broadcast"
	"contentplane/internal/controller/middleware"
	"contentplane/internal/store"
)

func TestStreamEvents_DeliversProgress(t *testing.T) {
	tenant := testTenant()
	hub := broadcast.NewHub(16)
	h := New(&mockStore{}, &mockEngine{}, &mockSubscriber{hub: hub})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(middleware.WithTenant(r.Context(), tenant))
		h.StreamEvents(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Let the subscription register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	pipelineID := uuid.New()
	hub.Publish(broadcast.ProgressEvent{
		PipelineID: pipelineID,
		TenantID:   tenant.ID,
		Status:     store.PipelineStatusRunning,
		Timestamp:  time.Now().UTC(),
	})

	scanner := bufio.NewScanner(resp.Body)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	if dataLine == "" {
		t.Fatalf("no data line received: %v", scanner.Err())
	}
	if !strings.Contains(dataLine, pipelineID.String()) || !strings.Contains(dataLine, "running") {
		t.Errorf("data line = %q, want pipeline id and status", dataLine)
	}
}

func TestStreamEvents_RejectsBadPipelineID(t *testing.T) {
	hub := broadcast.NewHub(16)
	h := New(&mockStore{}, &mockEngine{}, &mockSubscriber{hub: hub})

	req := httptest.NewRequest(http.MethodGet, "/events?pipeline_id=garbage", nil)
	req = req.WithContext(middleware.WithTenant(req.Context(), testTenant()))
	rr := httptest.NewRecorder()
	h.StreamEvents(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rr.Code)
	}
}

func TestStreamEvents_Unauthenticated(t *testing.T) {
	hub := broadcast.NewHub(16)
	h := New(&mockStore{}, &mockEngine{}, &mockSubscriber{hub: hub})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rr := httptest.NewRecorder()
	h.StreamEvents(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rr.Code)
	}
}
