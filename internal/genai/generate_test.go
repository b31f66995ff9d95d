package genai

import (
	"errors"
	"testing"
	"time"
)

func TestRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"server error", errors.New("received 500 from upstream"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"unavailable", errors.New("service Unavailable"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded (client timeout)"), true},
		{"invalid request", errors.New("invalid request: missing model"), false},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"content policy", errors.New("blocked by safety settings"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryableError(tc.err); got != tc.want {
				t.Fatalf("retryableError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		t.Fatalf("intervals out of order: %v, %v", cfg.InitialInterval, cfg.MaxInterval)
	}
}

func TestNewGeneratorAppliesRetryDefaults(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{ModelName: "test/model"})
	if gen.retry.MaxRetries != DefaultRetryConfig().MaxRetries {
		t.Fatalf("retry defaults not applied: %+v", gen.retry)
	}

	custom := RetryConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	gen = NewGenerator(GeneratorConfig{ModelName: "test/model", Retry: custom})
	if gen.retry != custom {
		t.Fatalf("custom retry config not kept: %+v", gen.retry)
	}
}
