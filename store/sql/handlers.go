package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func pendingCallbackHandlers() repository.ModelHandlers[*pendingCallbackRecord] {
	return repository.ModelHandlers[*pendingCallbackRecord]{
		NewRecord: func() *pendingCallbackRecord {
			return &pendingCallbackRecord{}
		},
		GetID: func(record *pendingCallbackRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *pendingCallbackRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *pendingCallbackRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func consumerCredentialHandlers() repository.ModelHandlers[*consumerCredentialRecord] {
	return repository.ModelHandlers[*consumerCredentialRecord]{
		NewRecord: func() *consumerCredentialRecord {
			return &consumerCredentialRecord{}
		},
		GetID: func(record *consumerCredentialRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *consumerCredentialRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *consumerCredentialRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func nonceClaimHandlers() repository.ModelHandlers[*nonceClaimRecord] {
	return repository.ModelHandlers[*nonceClaimRecord]{
		NewRecord: func() *nonceClaimRecord {
			return &nonceClaimRecord{}
		},
		GetID: func(record *nonceClaimRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *nonceClaimRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *nonceClaimRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
