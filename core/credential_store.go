package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// ErrUnknownConsumer is returned by credential lookups for keys that were
// never provisioned.
var ErrUnknownConsumer = goerrors.New(
	"core: unknown consumer key",
	goerrors.CategoryAuth,
).WithCode(http.StatusUnauthorized).WithTextCode(BridgeErrorUnknownConsumer)

// MemoryCredentialStore holds consumer secrets in process memory, usually
// populated from configuration at startup. No token support.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryCredentialStore(secrets map[string]string) *MemoryCredentialStore {
	store := &MemoryCredentialStore{secrets: map[string]string{}}
	for key, secret := range secrets {
		store.SetConsumer(key, secret)
	}
	return store
}

func (s *MemoryCredentialStore) SetConsumer(consumerKey string, consumerSecret string) {
	if s == nil {
		return
	}
	consumerKey = strings.TrimSpace(consumerKey)
	if consumerKey == "" {
		return
	}
	s.mu.Lock()
	s.secrets[consumerKey] = consumerSecret
	s.mu.Unlock()
}

func (s *MemoryCredentialStore) LookupSecret(_ context.Context, consumerKey string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: credential store is not configured")
	}
	s.mu.RLock()
	secret, ok := s.secrets[strings.TrimSpace(consumerKey)]
	s.mu.RUnlock()
	if !ok {
		return "", ErrUnknownConsumer
	}
	return secret, nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
