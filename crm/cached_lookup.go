package crm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const emailIDCacheKeyPrefix = "go-mailhooks::crm_email_id::v1"

// CachedEmailLookup memoizes provider-message-id to CRM-record-id
// resolutions. The mapping never changes once established, so entries
// only need eviction when the CRM record itself is deleted.
type CachedEmailLookup struct {
	base  EmailLookup
	cache repositorycache.CacheService
}

func NewCachedEmailLookup(base EmailLookup, cacheService repositorycache.CacheService) (*CachedEmailLookup, error) {
	if base == nil {
		return nil, fmt.Errorf("crm: base email lookup is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("crm: email lookup cache service is required")
	}
	return &CachedEmailLookup{base: base, cache: cacheService}, nil
}

// EmailIDCacheKey returns the deterministic cache key contract for email
// id lookups: go-mailhooks::crm_email_id::v1::<provider_message_id> with
// the segment URL-path escaped after trimming.
func EmailIDCacheKey(providerMessageID string) (string, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return "", fmt.Errorf("crm: provider message id is required for cache key")
	}
	return strings.Join([]string{emailIDCacheKeyPrefix, url.PathEscape(providerMessageID)}, "::"), nil
}

func (l *CachedEmailLookup) LookupEmailID(ctx context.Context, providerMessageID string) (string, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return "", fmt.Errorf("crm: cached email lookup is not configured")
	}
	cacheKey, err := EmailIDCacheKey(providerMessageID)
	if err != nil {
		return "", err
	}
	return repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (string, error) {
		return l.base.LookupEmailID(ctx, strings.TrimSpace(providerMessageID))
	})
}

// Invalidate drops a memoized resolution, forcing the next lookup to hit
// the CRM again.
func (l *CachedEmailLookup) Invalidate(ctx context.Context, providerMessageID string) error {
	if l == nil || l.cache == nil {
		return fmt.Errorf("crm: cached email lookup is not configured")
	}
	cacheKey, err := EmailIDCacheKey(providerMessageID)
	if err != nil {
		return err
	}
	return l.cache.Delete(ctx, cacheKey)
}

var _ EmailLookup = (*CachedEmailLookup)(nil)
