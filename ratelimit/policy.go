package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lti-bridge/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the throttle bookkeeping for one tool consumer. The outcome
// service on the consumer side decides the pacing; we only remember what
// its last responses told us.
type State struct {
	ConsumerKey    string
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, consumerKey string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	ConsumerKey string
	RetryAfter  time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: consumer %q throttled for %s",
		strings.TrimSpace(e.ConsumerKey),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToBridgeError() *goerrors.Error {
	metadata := map[string]any{
		"consumer_key": strings.TrimSpace(e.ConsumerKey),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.BridgeErrorRateLimited).
		WithMetadata(metadata)
}

// AdaptivePolicy throttles grade POSTs per consumer based on what the
// outcome service reported: an explicit Retry-After wins, a 429 without
// one falls back to exponential backoff.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *AdaptivePolicy) BeforeSubmit(ctx context.Context, consumerKey string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	consumerKey = normalizeConsumerKey(consumerKey)
	state, err := p.Store.Get(ctx, consumerKey)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{ConsumerKey: consumerKey, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{ConsumerKey: consumerKey, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

func (p *AdaptivePolicy) AfterSubmit(ctx context.Context, consumerKey string, res core.OutcomeResponse) error {
	if p == nil || p.Store == nil {
		return nil
	}
	consumerKey = normalizeConsumerKey(consumerKey)
	now := p.now()
	state, err := p.Store.Get(ctx, consumerKey)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{ConsumerKey: consumerKey}
	}

	state.LastStatus = res.StatusCode
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(res.Headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(res.Headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(res.Headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}

	retryAfter, hasRetryAfter := parseRetryAfter(res.Headers, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if isThrottledResponse(res.StatusCode, state.Remaining, hasRemaining, hasResetAt, hasLimit, hasRetryAfter) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay <= 0 {
		return p.defaultRetryHint()
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (p *AdaptivePolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 5 * time.Second
}

func isThrottledResponse(
	statusCode int,
	remaining int,
	hasRemaining bool,
	hasResetAt bool,
	hasLimit bool,
	hasRetryAfter bool,
) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return false
	}
	return remaining == 0 && (hasRemaining || hasResetAt || hasLimit || hasRetryAfter)
}

func parseRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeConsumerKey(key string) string {
	return strings.TrimSpace(key)
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, consumerKey string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeConsumerKey(consumerKey)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.ConsumerKey = normalizeConsumerKey(state.ConsumerKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.ConsumerKey] = state
	return nil
}

var _ core.ThrottlePolicy = (*AdaptivePolicy)(nil)
