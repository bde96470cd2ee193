package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-lti-bridge/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires the bridge stores on top of one bun handle. The
// secret provider is mandatory because consumer secrets never land in the
// database unencrypted.
type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider

	callbackTTL time.Duration

	callbackStore   *CallbackStore
	credentialStore *CredentialStore
	nonceLedger     *NonceLedgerStore
}

func NewRepositoryFactory(secrets core.SecretProvider) *RepositoryFactory {
	return &RepositoryFactory{secrets: secrets}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithCallbackTTL sets the expiry horizon applied to pending callbacks
// registered without an explicit expiry. Zero keeps records until consumed.
func (f *RepositoryFactory) WithCallbackTTL(ttl time.Duration) *RepositoryFactory {
	if f != nil {
		f.callbackTTL = ttl
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.secrets == nil {
		return fmt.Errorf("sqlstore: secret provider is required")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.callbackStore != nil && f.credentialStore != nil && f.nonceLedger != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CallbackStore() core.CallbackStore {
	if f == nil {
		return nil
	}
	return f.callbackStore
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) NonceLedger() core.NonceLedger {
	if f == nil {
		return nil
	}
	return f.nonceLedger
}

// Credentials exposes the concrete store for the write path (SaveConsumer,
// RevokeConsumer); the read-only core contract hides those.
func (f *RepositoryFactory) Credentials() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) Callbacks() *CallbackStore {
	if f == nil {
		return nil
	}
	return f.callbackStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	callbackStore, err := NewCallbackStore(f.db, f.callbackTTL)
	if err != nil {
		return err
	}
	credentialStore, err := NewCredentialStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	nonceLedger, err := NewNonceLedgerStore(f.db)
	if err != nil {
		return err
	}

	f.callbackStore = callbackStore
	f.credentialStore = credentialStore
	f.nonceLedger = nonceLedger
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
