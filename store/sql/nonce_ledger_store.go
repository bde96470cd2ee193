package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NonceLedgerStore backs the replay window with a table. Claims within the
// freshness window are rejected when the key was already seen; expired
// claims are reclaimed in place rather than waiting for the purge sweep.
type NonceLedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*nonceClaimRecord]

	now func() time.Time
}

func NewNonceLedgerStore(db *bun.DB) (*NonceLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*nonceClaimRecord](db, nonceClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid nonce claim repository wiring: %w", err)
		}
	}
	return &NonceLedgerStore{
		db:   db,
		repo: repo,
		now:  time.Now,
	}, nil
}

func (s *NonceLedgerStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: nonce ledger store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("sqlstore: nonce claim key is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("sqlstore: nonce claim ttl must be positive")
	}

	now := s.now().UTC()
	claimed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &nonceClaimRecord{}
		selectErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_key = ?", key).
			Limit(1).
			Scan(ctx)
		if selectErr != nil && selectErr != sql.ErrNoRows {
			return selectErr
		}
		if selectErr == nil {
			if now.Before(record.ExpiresAt) {
				return nil
			}
			// The prior claim aged out of the window; take over its row.
			if _, deleteErr := tx.NewDelete().
				Model((*nonceClaimRecord)(nil)).
				Where("id = ?", record.ID).
				Exec(ctx); deleteErr != nil {
				return deleteErr
			}
		}
		_, insertErr := tx.NewInsert().Model(&nonceClaimRecord{
			ID:        uuid.NewString(),
			ClaimKey:  key,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}).Exec(ctx)
		if insertErr != nil {
			return insertErr
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *NonceLedgerStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: nonce ledger store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*nonceClaimRecord)(nil)).
		Where("expires_at <= ?", s.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
