// Package redis provides a Redis-backed lock.Provider for deployments where
// multiple engine processes share the session stores.
//
// Locks are plain SET NX keys with a TTL; release is a Lua compare-and-delete
// so a handle can only release the lock it acquired. Acquisition polls with a
// short backoff and is bounded only by context cancellation, matching the
// in-memory provider's semantics.
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"goa.design/harmony/runtime/harmony/lock"
)

const (
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	keyPrefix         = "harmony:lock:"
)

// releaseScript deletes the key only when it still holds this handle's owner
// token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type (
	// Options configures the provider.
	Options struct {
		// Client is the Redis connection. Required.
		Client *redis.Client
		// TTL bounds how long a crashed holder can pin a lock. Defaults to 30s.
		TTL time.Duration
		// RetryDelay is the poll interval while the lock is contended.
		// Defaults to 50ms.
		RetryDelay time.Duration
	}

	// Provider implements lock.Provider on Redis.
	Provider struct {
		client     *redis.Client
		ttl        time.Duration
		retryDelay time.Duration
	}

	handle struct {
		client *redis.Client
		key    string
		owner  string
		once   sync.Once
	}
)

var _ lock.Provider = (*Provider)(nil)

// New constructs a Provider.
func New(opts Options) (*Provider, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Provider{client: opts.Client, ttl: ttl, retryDelay: retryDelay}, nil
}

// Acquire implements lock.Provider. It blocks until the lock is granted or
// ctx is cancelled.
func (p *Provider) Acquire(ctx context.Context, key string) (lock.Handle, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	redisKey := keyPrefix + key
	owner := uuid.NewString()
	ticker := time.NewTicker(p.retryDelay)
	defer ticker.Stop()
	for {
		ok, err := p.client.SetNX(ctx, redisKey, owner, p.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &handle{client: p.client, key: redisKey, owner: owner}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release implements lock.Handle. It is safe to call more than once; only the
// first call touches Redis. Release uses a background context so a cancelled
// caller still frees the lock.
func (h *handle) Release() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.client.Eval(ctx, releaseScript, []string{h.key}, h.owner).Err()
	})
}
