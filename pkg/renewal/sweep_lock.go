package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript releases the lease only if this holder still owns it.
// KEYS[1] = lock key, ARGV[1] = holder token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a best-effort distributed lease so overlapping scheduler
// firings across replicas do not double-scan a tenant. The proposal
// store's unique constraint remains the correctness backstop; this is
// purely an efficiency measure.
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSweepLock creates a lease manager with the given TTL. The TTL should
// comfortably exceed a worst-case sweep duration.
func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SweepLock{client: client, ttl: ttl}
}

// Acquire takes the tenant's sweep lease. Returns a release func and true
// on success, or false when another holder has the lease.
func (l *SweepLock) Acquire(ctx context.Context, tenantID string) (release func(context.Context), acquired bool, err error) {
	key := fmt.Sprintf("renewal:sweep:%s", tenantID)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) {
		_ = releaseLockScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
