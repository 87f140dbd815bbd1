package webhooks

import (
	"testing"
	"time"
)

func TestExponentialRetryPolicyDefaults(t *testing.T) {
	policy := ExponentialRetryPolicy{}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 20, want: 30 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialRetryPolicyCustomBounds(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: 5 * time.Second, Max: 12 * time.Second}

	if got := policy.NextDelay(1); got != 5*time.Second {
		t.Fatalf("expected initial delay, got %v", got)
	}
	if got := policy.NextDelay(2); got != 10*time.Second {
		t.Fatalf("expected doubled delay, got %v", got)
	}
	if got := policy.NextDelay(3); got != 12*time.Second {
		t.Fatalf("expected capped delay, got %v", got)
	}
}
