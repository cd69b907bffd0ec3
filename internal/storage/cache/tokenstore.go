// Package cache decorates a TokenStore with a Redis read-aside cache.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const keyPrefix = "fcm:devices:"

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the stored value into dest, or returns ErrMiss.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
// Every write invalidates the user's entry so removals take effect on the next send.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedTokenStore"),
	}
}

func (s *CachedTokenStore) Fetch(ctx context.Context, user urn.URN) (*dispatch.Devices, error) {
	key := cacheKey(user)

	var cached dispatch.Devices
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("Cache read failed, falling back to store", "key", key, "err", err)
	}

	fresh, err := s.realStore.Fetch(ctx, user)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; a failed Set still serves from the store.
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", "key", key, "err", err)
	}
	return fresh, nil
}

func (s *CachedTokenStore) RegisterToken(ctx context.Context, user urn.URN, platform dispatch.Platform, token string) error {
	if err := s.realStore.RegisterToken(ctx, user, platform, token); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

func (s *CachedTokenStore) UnregisterToken(ctx context.Context, user urn.URN, platform dispatch.Platform, token string) error {
	if err := s.realStore.UnregisterToken(ctx, user, platform, token); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

func (s *CachedTokenStore) RegisterWeb(ctx context.Context, user urn.URN, sub dispatch.WebSubscription) error {
	if err := s.realStore.RegisterWeb(ctx, user, sub); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

func (s *CachedTokenStore) UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error {
	if err := s.realStore.UnregisterWeb(ctx, user, endpoint); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

// invalidate drops the cached device list. The store write already succeeded,
// so a failed Del is only logged; the entry expires after ttl.
func (s *CachedTokenStore) invalidate(ctx context.Context, user urn.URN) {
	key := cacheKey(user)
	if err := s.cache.Del(ctx, key); err != nil {
		s.logger.Warn("Cache invalidation failed", "key", key, "err", err)
	}
}

func cacheKey(user urn.URN) string {
	return keyPrefix + user.String()
}
