package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryNonceLedger_FirstClaimAccepted(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)
	accepted, err := ledger.Claim(context.Background(), "consumer-1:nonce_1", time.Minute)
	if err != nil {
		t.Fatalf("claim first: %v", err)
	}
	if !accepted {
		t.Fatalf("expected first claim to be accepted")
	}
}

func TestMemoryNonceLedger_ReplayRejectedWithinTTL(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if accepted, err := ledger.Claim(context.Background(), "consumer-1:nonce_2", time.Minute); err != nil {
		t.Fatalf("claim first: %v", err)
	} else if !accepted {
		t.Fatalf("expected first claim to be accepted")
	}

	if accepted, err := ledger.Claim(context.Background(), "consumer-1:nonce_2", time.Minute); err != nil {
		t.Fatalf("claim replay: %v", err)
	} else if accepted {
		t.Fatalf("expected replay claim to be rejected")
	}
}

func TestMemoryNonceLedger_AcceptsAfterTTLExpiry(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if accepted, err := ledger.Claim(context.Background(), "consumer-1:nonce_3", time.Minute); err != nil {
		t.Fatalf("claim first: %v", err)
	} else if !accepted {
		t.Fatalf("expected first claim to be accepted")
	}

	now = now.Add(2 * time.Minute)
	if accepted, err := ledger.Claim(context.Background(), "consumer-1:nonce_3", time.Minute); err != nil {
		t.Fatalf("claim after ttl expiry: %v", err)
	} else if !accepted {
		t.Fatalf("expected claim after ttl expiry to be accepted")
	}
}

func TestMemoryNonceLedger_ScopedPerConsumer(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)

	if accepted, _ := ledger.Claim(context.Background(), "consumer-1:shared", time.Minute); !accepted {
		t.Fatalf("expected first consumer claim to be accepted")
	}
	if accepted, _ := ledger.Claim(context.Background(), "consumer-2:shared", time.Minute); !accepted {
		t.Fatalf("expected second consumer to claim the same nonce value")
	}
}

func TestMemoryNonceLedger_CapacityEvictsOldest(t *testing.T) {
	ledger := NewMemoryNonceLedgerWithLimits(time.Hour, 2)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	for i, key := range []string{"k:a", "k:b", "k:c"} {
		now = now.Add(time.Duration(i) * time.Second)
		if accepted, err := ledger.Claim(context.Background(), key, time.Hour); err != nil || !accepted {
			t.Fatalf("claim %s: accepted=%v err=%v", key, accepted, err)
		}
	}

	// k:a had the oldest expiry and must have been evicted.
	if accepted, _ := ledger.Claim(context.Background(), "k:a", time.Hour); !accepted {
		t.Fatalf("expected evicted key to be claimable again")
	}
}

func TestMemoryNonceLedger_PurgeExpired(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	if _, err := ledger.Claim(context.Background(), "k:1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := ledger.Claim(context.Background(), "k:2", time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	now = now.Add(2 * time.Minute)
	pruned, err := ledger.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", pruned)
	}
}

func TestMemoryNonceLedger_RejectsEmptyKey(t *testing.T) {
	ledger := NewMemoryNonceLedger(time.Minute)
	if _, err := ledger.Claim(context.Background(), "   ", time.Minute); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}
