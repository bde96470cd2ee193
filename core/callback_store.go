package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNoPendingCallback is returned by Consume when no record exists for a
// result id, including the second of two consumes for the same id.
var ErrNoPendingCallback = goerrors.New(
	"core: no pending callback",
	goerrors.CategoryNotFound,
).WithCode(http.StatusNotFound).WithTextCode(BridgeErrorNoPendingCallback)

// MemoryCallbackStore keeps pending-grade records in process memory.
// Register and Consume are atomic per key under one mutex: two concurrent
// consumes for the same result id yield exactly one record and one
// ErrNoPendingCallback. Records never expire on their own; hosts bound the
// leak with PurgeExpired on a schedule (see adapters/gojob).
type MemoryCallbackStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]PendingCallback
	Now     func() time.Time
}

func NewMemoryCallbackStore(ttl time.Duration) *MemoryCallbackStore {
	return &MemoryCallbackStore{
		ttl:     ttl,
		entries: map[string]PendingCallback{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryCallbackStore) Register(_ context.Context, callback PendingCallback) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: callback store is not configured")
	}
	resultID := strings.TrimSpace(callback.ResultID)
	outcomeURL := strings.TrimSpace(callback.OutcomeServiceURL)
	if resultID == "" || outcomeURL == "" {
		return false, nil
	}

	now := s.now()
	callback.ResultID = resultID
	callback.OutcomeServiceURL = outcomeURL
	if callback.RegisteredAt.IsZero() {
		callback.RegisteredAt = now
	}
	if callback.ExpiresAt.IsZero() && s.ttl > 0 {
		callback.ExpiresAt = callback.RegisteredAt.Add(s.ttl)
	}

	s.mu.Lock()
	// Last registration wins: one outstanding callback per result id.
	s.entries[resultID] = callback
	s.mu.Unlock()

	return true, nil
}

func (s *MemoryCallbackStore) Consume(_ context.Context, resultID string) (PendingCallback, error) {
	if s == nil {
		return PendingCallback{}, fmt.Errorf("core: callback store is not configured")
	}
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return PendingCallback{}, ErrNoPendingCallback
	}

	s.mu.Lock()
	record, ok := s.entries[resultID]
	if ok {
		delete(s.entries, resultID)
	}
	s.mu.Unlock()

	if !ok {
		return PendingCallback{}, ErrNoPendingCallback
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return PendingCallback{}, ErrNoPendingCallback
	}
	return record, nil
}

// PurgeExpired drops records past their expiry. Records without an expiry
// are kept.
func (s *MemoryCallbackStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: callback store is not configured")
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for key, record := range s.entries {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.entries, key)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryCallbackStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ CallbackStore = (*MemoryCallbackStore)(nil)
