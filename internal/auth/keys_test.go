package auth

import (
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "simple key", input: "cp_test-api-key"},
		{name: "empty string", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HashKey(tt.input)
			if len(result) != 64 {
				t.Errorf("HashKey() returned %d chars, want 64", len(result))
			}
			if result != HashKey(tt.input) {
				t.Error("HashKey() is not deterministic")
			}
		})
	}
}

func TestHashKeyTrimsWhitespace(t *testing.T) {
	if HashKey("  cp_abc  ") != HashKey("cp_abc") {
		t.Error("HashKey() should ignore surrounding whitespace")
	}
}

func TestNewKey(t *testing.T) {
	k1, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	if !strings.HasPrefix(k1, "cp_") {
		t.Errorf("key %q missing cp_ prefix", k1)
	}
	if len(k1) != len("cp_")+64 {
		t.Errorf("key length = %d, want %d", len(k1), len("cp_")+64)
	}

	k2, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	if k1 == k2 {
		t.Error("two generated keys collided")
	}
}
