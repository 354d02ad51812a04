package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// redisQuotaStore keeps counters in Redis for horizontally scaled
// deployments, so every instance charges against the same ledger. The whole
// check-and-increment runs inside one Lua script, which Redis executes
// atomically. Keys embed the UTC day; the TTL is housekeeping only, long
// enough that a live day's counter can never expire mid-day.
type redisQuotaStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

var quotaIncrScript = goredis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  return -1
end
local new = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return new
`)

func NewRedisQuotaStore(rdb *goredis.Client) QuotaStore {
	return &redisQuotaStore{rdb: rdb, ttl: 48 * time.Hour}
}

func quotaKey(userID uuid.UUID, feature, day string) string {
	return fmt.Sprintf("quota:%s:%s:%s", userID, feature, day)
}

func (s *redisQuotaStore) Current(ctx context.Context, userID uuid.UUID, feature, day string) (int, error) {
	val, err := s.rdb.Get(ctx, quotaKey(userID, feature, day)).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (s *redisQuotaStore) IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, day string, limit int) (bool, int, error) {
	res, err := quotaIncrScript.Run(ctx, s.rdb,
		[]string{quotaKey(userID, feature, day)},
		limit, int(s.ttl.Seconds()),
	).Int()
	if err != nil {
		return false, 0, err
	}
	if res < 0 {
		return false, 0, nil
	}
	return true, res, nil
}
