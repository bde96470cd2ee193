package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-lti-bridge/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps consumer secrets encrypted at rest. A secret
// provider is required for writes; lookups decrypt through the same
// provider before handing the secret to the verifier.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*consumerCredentialRecord]
	secrets core.SecretProvider

	keyID      string
	keyVersion int
}

func NewCredentialStore(db *bun.DB, secrets core.SecretProvider) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*consumerCredentialRecord](db, consumerCredentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid consumer credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:         db,
		repo:       repo,
		secrets:    secrets,
		keyID:      "app-key",
		keyVersion: 1,
	}, nil
}

// SaveConsumer upserts the shared secret for a consumer key, revoking any
// prior active row so lookups see exactly one secret per key.
func (s *CredentialStore) SaveConsumer(ctx context.Context, consumerKey string, secret string) error {
	if s == nil || s.db == nil || s.secrets == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	consumerKey = strings.TrimSpace(consumerKey)
	if consumerKey == "" {
		return fmt.Errorf("sqlstore: consumer key is required")
	}

	encrypted, err := s.secrets.Encrypt(ctx, []byte(secret))
	if err != nil {
		return fmt.Errorf("sqlstore: encrypt consumer secret: %w", err)
	}

	now := time.Now().UTC()
	record := &consumerCredentialRecord{
		ID:                uuid.NewString(),
		ConsumerKey:       consumerKey,
		EncryptedSecret:   encrypted,
		EncryptionKeyID:   s.keyID,
		EncryptionVersion: s.keyVersion,
		Status:            credentialStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, updateErr := tx.NewUpdate().
			Model((*consumerCredentialRecord)(nil)).
			Set("status = ?", credentialStatusRevoked).
			Set("updated_at = ?", now).
			Where("consumer_key = ?", consumerKey).
			Where("status = ?", credentialStatusActive).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	})
}

func (s *CredentialStore) LookupSecret(ctx context.Context, consumerKey string) (string, error) {
	if s == nil || s.repo == nil || s.secrets == nil {
		return "", fmt.Errorf("sqlstore: credential store is not configured")
	}
	consumerKey = strings.TrimSpace(consumerKey)
	if consumerKey == "" {
		return "", core.ErrUnknownConsumer
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("consumer_key", "=", consumerKey),
		repository.SelectBy("status", "=", credentialStatusActive),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", core.ErrUnknownConsumer
	}

	plaintext, err := s.secrets.Decrypt(ctx, records[0].EncryptedSecret)
	if err != nil {
		return "", fmt.Errorf("sqlstore: decrypt consumer secret: %w", err)
	}
	return string(plaintext), nil
}

// RevokeConsumer disables every active secret for the key. Lookups fail
// with ErrUnknownConsumer afterwards.
func (s *CredentialStore) RevokeConsumer(ctx context.Context, consumerKey string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	consumerKey = strings.TrimSpace(consumerKey)
	if consumerKey == "" {
		return fmt.Errorf("sqlstore: consumer key is required")
	}
	_, err := s.db.NewUpdate().
		Model((*consumerCredentialRecord)(nil)).
		Set("status = ?", credentialStatusRevoked).
		Set("updated_at = ?", time.Now().UTC()).
		Where("consumer_key = ?", consumerKey).
		Where("status = ?", credentialStatusActive).
		Exec(ctx)
	return err
}
