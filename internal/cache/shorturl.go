package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brinecast/brinecast/internal/model"
)

// Cache key prefixes and TTLs.
const (
	shortURLKeyPrefix = "surl:"
	negCacheKeySuffix = ":neg"

	// DefaultShortURLTTL is the TTL for cached short URL data.
	DefaultShortURLTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// ErrCacheMiss is returned when a key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// GetShortURL retrieves a short URL from cache by code.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetShortURL(ctx context.Context, code string) (*model.CachedShortURL, error) {
	key := shortURLKeyPrefix + code

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedShortURL{
		OriginalURL: result["original_url"],
		Active:      result["active"],
		ExpiresAt:   result["expires_at"],
		CampaignID:  result["campaign_id"],
		MessageID:   result["message_id"],
	}

	return cached, nil
}

// SetShortURL stores a short URL in cache.
func (c *Cache) SetShortURL(ctx context.Context, s *model.ShortURL) error {
	key := shortURLKeyPrefix + s.Code
	cached := s.ToCachedShortURL()

	ttl := DefaultShortURLTTL
	if s.ExpiresAt != nil {
		expiresIn := time.Until(*s.ExpiresAt)
		if expiresIn <= 0 {
			c.client.Del(ctx, key, key+negCacheKeySuffix)
			return nil
		}
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}

	fields := map[string]any{
		"original_url": cached.OriginalURL,
		"active":       cached.Active,
	}

	// Only set optional fields if they have values
	if cached.ExpiresAt != "" {
		fields["expires_at"] = cached.ExpiresAt
	}
	if cached.CampaignID != "" {
		fields["campaign_id"] = cached.CampaignID
	}
	if cached.MessageID != "" {
		fields["message_id"] = cached.MessageID
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache short url: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteShortURL removes a short URL from cache.
func (c *Cache) DeleteShortURL(ctx context.Context, code string) error {
	key := shortURLKeyPrefix + code

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete short url from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a code is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, code string) (bool, error) {
	key := shortURLKeyPrefix + code + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a code as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, code string) error {
	key := shortURLKeyPrefix + code + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
