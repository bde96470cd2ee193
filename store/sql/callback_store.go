package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-lti-bridge/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CallbackStore persists pending-grade records, one per result id. The
// delete-guarded consume keeps at-most-once semantics across processes:
// whichever transaction removes the row owns the record.
type CallbackStore struct {
	db   *bun.DB
	repo repository.Repository[*pendingCallbackRecord]

	ttl time.Duration
	now func() time.Time
}

func NewCallbackStore(db *bun.DB, ttl time.Duration) (*CallbackStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pendingCallbackRecord](db, pendingCallbackHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pending callback repository wiring: %w", err)
		}
	}
	return &CallbackStore{
		db:   db,
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

func (s *CallbackStore) Register(ctx context.Context, callback core.PendingCallback) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: callback store is not configured")
	}
	resultID := strings.TrimSpace(callback.ResultID)
	outcomeURL := strings.TrimSpace(callback.OutcomeServiceURL)
	if resultID == "" || outcomeURL == "" {
		return false, nil
	}

	now := s.now().UTC()
	registeredAt := callback.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = now
	}
	record := &pendingCallbackRecord{
		ID:                uuid.NewString(),
		ResultID:          resultID,
		OutcomeServiceURL: outcomeURL,
		ConsumerKey:       strings.TrimSpace(callback.ConsumerKey),
		ReturnURL:         strings.TrimSpace(callback.ReturnURL),
		RegisteredAt:      registeredAt.UTC(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	switch {
	case !callback.ExpiresAt.IsZero():
		expiresAt := callback.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	case s.ttl > 0:
		expiresAt := now.Add(s.ttl)
		record.ExpiresAt = &expiresAt
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Re-registration replaces the record wholesale, last launch wins.
		if _, deleteErr := tx.NewDelete().
			Model((*pendingCallbackRecord)(nil)).
			Where("result_id = ?", resultID).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CallbackStore) Consume(ctx context.Context, resultID string) (core.PendingCallback, error) {
	if s == nil || s.db == nil {
		return core.PendingCallback{}, fmt.Errorf("sqlstore: callback store is not configured")
	}
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return core.PendingCallback{}, core.ErrNoPendingCallback
	}

	now := s.now().UTC()
	var consumed core.PendingCallback
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &pendingCallbackRecord{}
		selectErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.result_id = ?", resultID).
			Limit(1).
			Scan(ctx)
		if selectErr != nil {
			if selectErr == sql.ErrNoRows {
				return core.ErrNoPendingCallback
			}
			return selectErr
		}

		res, deleteErr := tx.NewDelete().
			Model((*pendingCallbackRecord)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if deleteErr != nil {
			return deleteErr
		}
		affected, affectedErr := res.RowsAffected()
		if affectedErr != nil {
			return affectedErr
		}
		// A concurrent consumer already removed the row; it owns the record.
		if affected != 1 {
			return core.ErrNoPendingCallback
		}
		if record.ExpiresAt != nil && now.After(*record.ExpiresAt) {
			return core.ErrNoPendingCallback
		}
		consumed = record.toDomain()
		return nil
	})
	if err != nil {
		return core.PendingCallback{}, err
	}
	return consumed, nil
}

// PurgeExpired drops records past their expiry. Records without an expiry
// are kept.
func (s *CallbackStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: callback store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*pendingCallbackRecord)(nil)).
		Where("expires_at IS NOT NULL").
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
