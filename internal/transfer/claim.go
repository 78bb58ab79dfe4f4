package transfer

import (
	"context"
	"time"

	"callbridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Claimer guards carrier-level side effects: at most one transfer per
// live call leg, across processes.
type Claimer interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// RedisClaimer backs the claim with Redis so the guard holds across
// process restarts and horizontally scaled instances.

type RedisClaimer struct {
	rdb *redis.Client
}

func NewRedisClaimer(rdb *redis.Client) *RedisClaimer { return &RedisClaimer{rdb: rdb} }

func (c *RedisClaimer) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return utils.AcquireClaim(ctx, c.rdb, key, owner, ttl)
}

func (c *RedisClaimer) Release(ctx context.Context, key, owner string) error {
	return utils.ReleaseClaim(ctx, c.rdb, key, owner)
}
