package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-lti-bridge/core"
)

func TestAdaptivePolicy_BeforeSubmitAllowsWhenNoState(t *testing.T) {
	policy := NewAdaptivePolicy(NewMemoryStateStore())

	if err := policy.BeforeSubmit(context.Background(), "moodle-key"); err != nil {
		t.Fatalf("expected no error when no state exists, got %v", err)
	}
}

func TestAdaptivePolicy_AfterSubmitParsesHeadersAndPersistsState(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	resetAt := now.Add(45 * time.Second)
	err := policy.AfterSubmit(context.Background(), "moodle-key", core.OutcomeResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "100",
			"X-RateLimit-Remaining": "99",
			"X-RateLimit-Reset":     "1700000045",
		},
	})
	if err != nil {
		t.Fatalf("after submit: %v", err)
	}

	state, err := store.Get(context.Background(), "moodle-key")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Limit != 100 {
		t.Fatalf("expected limit 100, got %d", state.Limit)
	}
	if state.Remaining != 99 {
		t.Fatalf("expected remaining 99, got %d", state.Remaining)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset at %s, got %+v", resetAt, state.ResetAt)
	}
}

func TestAdaptivePolicy_BlocksWhenThrottleWindowIsActive(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	until := now.Add(20 * time.Second)
	if err := store.Upsert(context.Background(), State{ConsumerKey: "moodle-key", ThrottledUntil: &until}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	err := policy.BeforeSubmit(context.Background(), "moodle-key")
	if err == nil {
		t.Fatalf("expected throttle error")
	}
	var throttledErr ThrottledError
	if !errors.As(err, &throttledErr) {
		t.Fatalf("expected ThrottledError, got %T", err)
	}
	if throttledErr.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", throttledErr.RetryAfter)
	}
}

func TestAdaptivePolicy_TooManyRequestsStartsBackoffWindow(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	if err := policy.AfterSubmit(context.Background(), "moodle-key", core.OutcomeResponse{
		StatusCode: http.StatusTooManyRequests,
	}); err != nil {
		t.Fatalf("after submit: %v", err)
	}

	state, err := store.Get(context.Background(), "moodle-key")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", state.Attempts)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.After(now) {
		t.Fatalf("expected throttle window, got %+v", state.ThrottledUntil)
	}

	if err := policy.BeforeSubmit(context.Background(), "moodle-key"); err == nil {
		t.Fatalf("expected submissions to be blocked inside the window")
	}
}

func TestAdaptivePolicy_RetryAfterHeaderWinsOverBackoff(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	if err := policy.AfterSubmit(context.Background(), "moodle-key", core.OutcomeResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "30"},
	}); err != nil {
		t.Fatalf("after submit: %v", err)
	}

	state, err := store.Get(context.Background(), "moodle-key")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	expected := now.Add(30 * time.Second)
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(expected) {
		t.Fatalf("expected throttle until %s, got %+v", expected, state.ThrottledUntil)
	}
}

func TestAdaptivePolicy_SuccessClearsThrottleState(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	if err := policy.AfterSubmit(context.Background(), "moodle-key", core.OutcomeResponse{
		StatusCode: http.StatusTooManyRequests,
	}); err != nil {
		t.Fatalf("seed throttled state: %v", err)
	}
	if err := policy.AfterSubmit(context.Background(), "moodle-key", core.OutcomeResponse{
		StatusCode: http.StatusOK,
	}); err != nil {
		t.Fatalf("after successful submit: %v", err)
	}

	state, err := store.Get(context.Background(), "moodle-key")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected cleared throttle state, got %+v", state)
	}

	if err := policy.BeforeSubmit(context.Background(), "moodle-key"); err != nil {
		t.Fatalf("expected submissions to be allowed again, got %v", err)
	}
}

func TestThrottledError_ToBridgeError(t *testing.T) {
	bridgeErr := ThrottledError{ConsumerKey: "moodle-key", RetryAfter: 10 * time.Second}.ToBridgeError()
	if bridgeErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", bridgeErr.Code)
	}
	if bridgeErr.TextCode != core.BridgeErrorRateLimited {
		t.Fatalf("unexpected text code %q", bridgeErr.TextCode)
	}
	if bridgeErr.Metadata["retry_after_ms"] != int64(10_000) {
		t.Fatalf("unexpected metadata: %+v", bridgeErr.Metadata)
	}
}
