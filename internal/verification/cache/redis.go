// Package cache remembers approved identities in Redis so campaign creation
// does not hit the verification store on every call.
//
// Only approvals are cached. Approval is terminal, so a cached entry can never
// become wrong; caching negative answers could hide a later approval.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "crowdfund/pkg/domain"
)

const keyPrefix = "crowdfund:verification:approved:"

type RedisApprovalCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedis builds a cache whose entries expire after ttl (0 keeps them forever).
func NewRedis(client redis.Cmdable, ttl time.Duration) *RedisApprovalCache {
	return &RedisApprovalCache{client: client, ttl: ttl}
}

func key(identity id.Identity) string {
	return keyPrefix + identity.String()
}

// IsApproved reports a cache hit. A miss returns false with no error.
func (c *RedisApprovalCache) IsApproved(ctx context.Context, identity id.Identity) (bool, error) {
	err := c.client.Get(ctx, key(identity)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get approval: %w", err)
	}
	return true, nil
}

func (c *RedisApprovalCache) MarkApproved(ctx context.Context, identity id.Identity) error {
	if err := c.client.Set(ctx, key(identity), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set approval: %w", err)
	}
	return nil
}
