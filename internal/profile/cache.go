package profile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const listingKey = "octodevs:listing"

// ListingCache is a short-TTL Redis cache of the merged, sorted published
// listing. It is strictly an optimization: every miss or Redis failure falls
// through to the full sync path, and publish/unpublish invalidate it so the
// listing reflects visibility changes immediately.
type ListingCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewListingCache creates a ListingCache. A ttl of 0 defaults to one minute.
func NewListingCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ListingCache {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &ListingCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the cached listing and true on a hit.
func (c *ListingCache) Get(ctx context.Context) ([]Profile, bool) {
	raw, err := c.rdb.Get(ctx, listingKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("listing cache get", zap.Error(err))
		}
		return nil, false
	}
	ps, err := decodeListing(raw)
	if err != nil {
		c.logger.Warn("listing cache decode", zap.Error(err))
		return nil, false
	}
	return ps, true
}

// decodeListing unmarshals a cached listing. An empty listing is stored as
// JSON null and must come back as a non-nil slice so handlers serve [] the
// same way the uncached path does.
func decodeListing(raw []byte) ([]Profile, error) {
	var ps []Profile
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []Profile{}
	}
	return ps, nil
}

// Set stores the listing with the configured TTL.
func (c *ListingCache) Set(ctx context.Context, ps []Profile) {
	raw, err := json.Marshal(ps)
	if err != nil {
		c.logger.Warn("listing cache encode", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, listingKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("listing cache set", zap.Error(err))
	}
}

// Invalidate drops the cached listing.
func (c *ListingCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, listingKey).Err(); err != nil {
		c.logger.Warn("listing cache invalidate", zap.Error(err))
	}
}
