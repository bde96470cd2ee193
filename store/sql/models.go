package sqlstore

import (
	"time"

	"github.com/goliatone/go-lti-bridge/core"
	"github.com/uptrace/bun"
)

type pendingCallbackRecord struct {
	bun.BaseModel `bun:"table:lti_pending_callbacks,alias:lpc"`

	ID                string     `bun:"id,pk"`
	ResultID          string     `bun:"result_id,notnull"`
	OutcomeServiceURL string     `bun:"outcome_service_url,notnull"`
	ConsumerKey       string     `bun:"consumer_key"`
	ReturnURL         string     `bun:"return_url"`
	RegisteredAt      time.Time  `bun:"registered_at,nullzero,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *pendingCallbackRecord) toDomain() core.PendingCallback {
	if r == nil {
		return core.PendingCallback{}
	}
	callback := core.PendingCallback{
		ResultID:          r.ResultID,
		OutcomeServiceURL: r.OutcomeServiceURL,
		ConsumerKey:       r.ConsumerKey,
		ReturnURL:         r.ReturnURL,
		RegisteredAt:      r.RegisteredAt,
	}
	if r.ExpiresAt != nil {
		callback.ExpiresAt = r.ExpiresAt.UTC()
	}
	return callback
}

type consumerCredentialRecord struct {
	bun.BaseModel `bun:"table:lti_consumer_credentials,alias:lcc"`

	ID                string    `bun:"id,pk"`
	ConsumerKey       string    `bun:"consumer_key,notnull"`
	EncryptedSecret   []byte    `bun:"encrypted_secret,notnull"`
	EncryptionKeyID   string    `bun:"encryption_key_id,notnull"`
	EncryptionVersion int       `bun:"encryption_version,notnull"`
	Status            string    `bun:"status,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

const (
	credentialStatusActive  = "active"
	credentialStatusRevoked = "revoked"
)

type nonceClaimRecord struct {
	bun.BaseModel `bun:"table:lti_nonce_claims,alias:lnc"`

	ID        string    `bun:"id,pk"`
	ClaimKey  string    `bun:"claim_key,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
