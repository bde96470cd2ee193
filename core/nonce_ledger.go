package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultNonceLedgerTTL = 5 * time.Minute
const defaultNonceLedgerMaxEntries = 8192

// MemoryNonceLedger is a TTL-bounded set of (consumerKey, nonce) claims.
// The original tool stubbed nonce replay detection entirely; this ledger
// closes that gap with a sliding window tied to the timestamp freshness
// window.
type MemoryNonceLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryNonceLedger(defaultTTL time.Duration) *MemoryNonceLedger {
	return NewMemoryNonceLedgerWithLimits(defaultTTL, defaultNonceLedgerMaxEntries)
}

func NewMemoryNonceLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryNonceLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultNonceLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultNonceLedgerMaxEntries
	}
	return &MemoryNonceLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryNonceLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: nonce ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: nonce key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneExpiredLocked(now)
	if expiresAt, ok := l.entries[key]; ok {
		if now.Before(expiresAt) {
			return false, nil
		}
		delete(l.entries, key)
	}
	l.enforceCapacityLocked(1)
	l.entries[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryNonceLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: nonce ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned, nil
}

func (l *MemoryNonceLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryNonceLedger) pruneExpiredLocked(now time.Time) {
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryNonceLedger) enforceCapacityLocked(incoming int) {
	if l.maxEntries <= 0 {
		return
	}
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		l.evictOldestLocked()
	}
}

func (l *MemoryNonceLedger) evictOldestLocked() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, expiry := range l.entries {
		if oldestKey == "" || expiry.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = expiry
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
		return
	}
	for key := range l.entries {
		delete(l.entries, key)
		break
	}
}

var _ NonceLedger = (*MemoryNonceLedger)(nil)
