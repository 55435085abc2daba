package webhooks

import (
	"testing"
	"time"
)

func TestBackoffDelayDoubles(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, 5)

	previous := time.Duration(0)
	for attempts := 0; attempts < 4; attempts++ {
		delay := policy.Delay(attempts)
		want := time.Second << uint(attempts)
		if delay != want {
			t.Fatalf("attempts=%d expected delay %v got %v", attempts, want, delay)
		}
		if delay <= previous {
			t.Fatalf("delay must strictly increase, got %v after %v", delay, previous)
		}
		previous = delay
	}
}

func TestBackoffNegativeAttemptsClamped(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, 3)
	if got := policy.Delay(-1); got != time.Second {
		t.Fatalf("expected base delay for negative attempts, got %v", got)
	}
}

func TestNextRetryAtUsesFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 5, 12, 9, 45, 0, 0, time.UTC)
	policy := NewBackoffPolicy(time.Second, 3)
	policy.now = func() time.Time { return frozen }

	first := policy.NextRetryAt(0)
	if first == nil {
		t.Fatal("expected a retry after the first failure")
	}
	if want := frozen.Add(time.Second); !first.Equal(want) {
		t.Fatalf("expected first retry at %v got %v", want, first)
	}

	second := policy.NextRetryAt(1)
	if second == nil {
		t.Fatal("expected a retry after the second failure")
	}
	if want := frozen.Add(2 * time.Second); !second.Equal(want) {
		t.Fatalf("expected second retry at %v got %v", want, second)
	}
}

func TestNextRetryAtNilAtCeiling(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, 3)

	if policy.NextRetryAt(2) != nil {
		t.Fatal("third failure must exhaust the ceiling")
	}
	if policy.NextRetryAt(5) != nil {
		t.Fatal("attempts beyond the ceiling must never retry")
	}
	// The delay for the exhausted attempt is still well defined even though it
	// is never scheduled.
	if got := policy.Delay(2); got != 4*time.Second {
		t.Fatalf("expected 4s computed delay at ceiling, got %v", got)
	}
}

func TestNewBackoffPolicyDefaults(t *testing.T) {
	policy := NewBackoffPolicy(0, 0)
	if policy.BaseDelay != time.Second {
		t.Fatalf("expected default base delay 1s, got %v", policy.BaseDelay)
	}
	if policy.MaxAttempts != 3 {
		t.Fatalf("expected default ceiling 3, got %d", policy.MaxAttempts)
	}
}
