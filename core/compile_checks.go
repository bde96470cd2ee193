package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CallbackStore   = (*MemoryCallbackStore)(nil)
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ NonceLedger     = (*MemoryNonceLedger)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
