package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRetryableDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9: connect: connection refused"), true},
		{"try again", errors.New("dial tcp: lookup host: temporary failure, try again"), true},
		{"i/o timeout", errors.New("dial tcp 127.0.0.1:9: i/o timeout"), true},
		{"no such host", errors.New("dial tcp: lookup nonexistent.invalid: no such host"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableDialError(tt.err); got != tt.want {
				t.Errorf("isRetryableDialError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestDialBackoff_NonRetryableErrorReturnsImmediately guards against
// dialBackoff retrying on every dial error instead of only the
// retryable set: a bogus host fails DNS resolution (not connection
// refused/try again/i/o timeout) and must not loop on the 1s retry
// delay.
func TestDialBackoff_NonRetryableErrorReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := dialBackoff(ctx, "this-host-does-not-resolve.invalid:9", testLogger())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a dial error for an unresolvable host")
	}
	if elapsed >= 1*time.Second {
		t.Fatalf("dialBackoff took %v, want it to return before the 1s retry delay on a non-retryable error", elapsed)
	}
}
