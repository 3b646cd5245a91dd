package catalog

import (
	"context"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/redis"
)

// SaveLocker serializes media saves per entity. Holding the lock does not
// guard correctness (the document write is already atomic); it keeps two
// editors from racing uploads against the same carousel.
type SaveLocker interface {
	Acquire(ctx context.Context, siteKey, kind, entityID string) (bool, error)
	Release(ctx context.Context, siteKey, kind, entityID string)
}

const defaultSaveLockTTL = 10 * time.Minute

// RedisSaveLocker implements SaveLocker on a shared redis instance. The TTL
// bounds how long a crashed save can keep an entity locked.
type RedisSaveLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSaveLocker(client *redis.Client, ttl time.Duration) *RedisSaveLocker {
	if ttl <= 0 {
		ttl = defaultSaveLockTTL
	}
	return &RedisSaveLocker{client: client, ttl: ttl}
}

func (l *RedisSaveLocker) Acquire(ctx context.Context, siteKey, kind, entityID string) (bool, error) {
	return l.client.SetNX(ctx, l.client.SaveLockKey(siteKey, kind, entityID), "1", l.ttl)
}

func (l *RedisSaveLocker) Release(ctx context.Context, siteKey, kind, entityID string) {
	_ = l.client.Del(ctx, l.client.SaveLockKey(siteKey, kind, entityID))
}
