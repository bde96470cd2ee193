package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-lti-bridge/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-lti-bridge::consumer_secret::v1"

// ConsumerSecretStore is the read/write secret contract the cache wraps.
type ConsumerSecretStore interface {
	LookupSecret(ctx context.Context, consumerKey string) (string, error)
	SaveConsumer(ctx context.Context, consumerKey string, secret string) error
	RevokeConsumer(ctx context.Context, consumerKey string) error
}

// CachedCredentialStore fronts secret lookups with a cache. The signature
// check runs on every inbound request, so lookups dominate writes by
// orders of magnitude; writes invalidate the cached entry.
type CachedCredentialStore struct {
	base  ConsumerSecretStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(base ConsumerSecretStore, cacheService repositorycache.CacheService) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns the deterministic cache key contract for
// secret reads: go-lti-bridge::consumer_secret::v1::<consumer_key> with
// the key segment URL-path escaped.
func CredentialCacheKey(consumerKey string) (string, error) {
	trimmed := strings.TrimSpace(consumerKey)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: consumer key is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedCredentialStore) LookupSecret(ctx context.Context, consumerKey string) (string, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(consumerKey)
	if err != nil {
		return "", core.ErrUnknownConsumer
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (string, error) {
		return s.base.LookupSecret(ctx, consumerKey)
	})
}

func (s *CachedCredentialStore) SaveConsumer(ctx context.Context, consumerKey string, secret string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.SaveConsumer(ctx, consumerKey, secret); err != nil {
		return err
	}
	return s.invalidate(ctx, consumerKey)
}

func (s *CachedCredentialStore) RevokeConsumer(ctx context.Context, consumerKey string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.RevokeConsumer(ctx, consumerKey); err != nil {
		return err
	}
	return s.invalidate(ctx, consumerKey)
}

func (s *CachedCredentialStore) invalidate(ctx context.Context, consumerKey string) error {
	cacheKey, err := CredentialCacheKey(consumerKey)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
