package sqlstore

import "github.com/goliatone/go-lti-bridge/core"

var (
	_ core.CallbackStore   = (*CallbackStore)(nil)
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.CredentialStore = (*CachedCredentialStore)(nil)
	_ core.NonceLedger     = (*NonceLedgerStore)(nil)
)
