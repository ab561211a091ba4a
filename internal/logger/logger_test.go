package logger

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "req-123")
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext() on empty context = %q, want empty", got)
	}
}

func TestFromContextAttachesRequestID(t *testing.T) {
	base := New()
	ctx := WithRequestID(context.Background(), "req-456")
	l := FromContext(ctx, base)
	if l == base {
		t.Error("expected a derived logger when a request ID is present")
	}
	if l2 := FromContext(context.Background(), base); l2 != base {
		t.Error("expected the base logger when no request ID is present")
	}
}
