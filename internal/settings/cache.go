package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

const cacheKey = "frontdesk:phone_settings:versioned"

// storeIfNewer keeps a reader that loaded an older version from overwriting
// settings a concurrent Save already cached.
var storeIfNewer = redis.NewScript(`
local cached = redis.call('HGET', KEYS[1], 'version')
if cached and tonumber(cached) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedStore puts a Redis read-through cache in front of a Store so every
// inbound call does not hit Postgres. Redis failures fall through to the backing store.
type CachedStore struct {
	backing Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *logging.Logger
}

// NewCachedStore wraps backing with a Redis cache. A nil client disables caching.
func NewCachedStore(backing Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if backing == nil {
		panic("settings: backing store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{backing: backing, redis: client, ttl: ttl, logger: logger}
}

var _ Store = (*CachedStore)(nil)

// Current returns the cached settings, loading and caching them on a miss.
func (c *CachedStore) Current(ctx context.Context) (PhoneSettings, error) {
	if c.redis != nil {
		data, err := c.redis.HGet(ctx, cacheKey, "data").Bytes()
		switch {
		case err == nil:
			var cached PhoneSettings
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				return cached, nil
			}
			c.logger.Warn("discarding unreadable cached phone settings")
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("phone settings cache read failed", "error", err)
		}
	}

	current, err := c.backing.Current(ctx)
	if err != nil {
		return PhoneSettings{}, err
	}
	c.store(ctx, current)
	return current, nil
}

// Save writes through to the backing store and refreshes the cache.
func (c *CachedStore) Save(ctx context.Context, s PhoneSettings) (PhoneSettings, error) {
	saved, err := c.backing.Save(ctx, s)
	if err != nil {
		return PhoneSettings{}, err
	}
	if c.redis != nil {
		if err := c.redis.Del(ctx, cacheKey).Err(); err != nil {
			c.logger.Warn("phone settings cache invalidation failed", "error", err)
		}
	}
	c.store(ctx, saved)
	return saved, nil
}

func (c *CachedStore) store(ctx context.Context, s PhoneSettings) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := storeIfNewer.Run(ctx, c.redis, []string{cacheKey}, s.Version, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.Warn("phone settings cache write failed", "error", err)
	}
}
