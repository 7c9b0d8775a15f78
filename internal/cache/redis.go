package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "cart:"
	defaultBaseTTL   = 15 * time.Minute
	defaultMaxJitter = 5 * time.Minute
)

// setIfNewer writes the cart only when nothing newer is cached.
// KEYS[1] cart key, KEYS[2] version key, ARGV[1] payload, ARGV[2] version, ARGV[3] ttl ms.
var setIfNewer = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	baseTTL   time.Duration
	maxJitter time.Duration
}

type Option func(*RedisCache)

func WithKeyPrefix(prefix string) Option {
	return func(r *RedisCache) { r.keyPrefix = prefix }
}

func WithTTL(base, jitter time.Duration) Option {
	return func(r *RedisCache) {
		r.baseTTL = base
		r.maxJitter = jitter
	}
}

// NewRedisCache stores carts as JSON. Entries live for the base TTL plus a
// random jitter so keys written together do not expire together.
func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	r := &RedisCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		baseTTL:   defaultBaseTTL,
		maxJitter: defaultMaxJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisCache) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, r.cacheKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

// Set caches cart unless a higher version is already cached.
func (r *RedisCache) Set(ctx context.Context, customerID string, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	keys := []string{r.cacheKey(customerID), r.versionKey(customerID)}
	err = setIfNewer.Run(ctx, r.client, keys, payload, cart.Version, r.ttl().Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete drops the cached cart. The version marker is kept so a slow
// concurrent Set of an older snapshot cannot resurrect stale data.
func (r *RedisCache) Delete(ctx context.Context, customerID string) error {
	if err := r.client.Del(ctx, r.cacheKey(customerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	if r.maxJitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + time.Duration(rand.Int63n(int64(r.maxJitter)))
}

func (r *RedisCache) cacheKey(customerID string) string {
	return r.keyPrefix + customerID
}

func (r *RedisCache) versionKey(customerID string) string {
	return r.keyPrefix + customerID + ":version"
}
