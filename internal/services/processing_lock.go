package services

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/studyflow-backend/internal/logger"
)

// ProcessingLockService guards against duplicate concurrent processing of
// the same source key. Acquire is fail-fast: a second caller is rejected, not
// queued. Release must run on every exit path of the job that acquired it.
type ProcessingLockService interface {
	Acquire(ctx context.Context, sourceKey, owner string) (bool, error)
	Release(ctx context.Context, sourceKey, owner string) error
}

type lockEntry struct {
	owner     string
	startedAt time.Time
}

// memoryProcessingLock is sufficient for one backend instance. Horizontal
// deployments must use the redis lock instead; an in-process map cannot see
// jobs held by sibling instances.
type memoryProcessingLock struct {
	mu   sync.Mutex
	log  *logger.Logger
	held map[string]lockEntry
}

func NewMemoryProcessingLock(baseLog *logger.Logger) ProcessingLockService {
	return &memoryProcessingLock{
		log:  baseLog.With("service", "ProcessingLock"),
		held: make(map[string]lockEntry),
	}
}

func (l *memoryProcessingLock) Acquire(ctx context.Context, sourceKey, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, exists := l.held[sourceKey]; exists {
		l.log.Debug("Lock already held", "source_key", sourceKey, "held_by", entry.owner, "since", entry.startedAt)
		return false, nil
	}
	l.held[sourceKey] = lockEntry{owner: owner, startedAt: time.Now()}
	return true, nil
}

func (l *memoryProcessingLock) Release(ctx context.Context, sourceKey, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.held[sourceKey]
	if !exists {
		return nil
	}
	if entry.owner != owner {
		l.log.Warn("Refusing lock release by non-owner", "source_key", sourceKey, "held_by", entry.owner, "caller", owner)
		return nil
	}
	delete(l.held, sourceKey)
	return nil
}

// redisProcessingLock uses SET NX with a TTL so a crashed instance cannot
// leave a permanently stuck lock. Release is a compare-and-delete script:
// only the owner's value may delete the key, so a job that outlived its TTL
// cannot release a lock some other job has since acquired.
type redisProcessingLock struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

var lockReleaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func NewRedisProcessingLock(baseLog *logger.Logger, rdb *goredis.Client, ttl time.Duration) ProcessingLockService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &redisProcessingLock{
		log: baseLog.With("service", "ProcessingLock"),
		rdb: rdb,
		ttl: ttl,
	}
}

func lockKey(sourceKey string) string {
	return "ingest_lock:" + sourceKey
}

func (l *redisProcessingLock) Acquire(ctx context.Context, sourceKey, owner string) (bool, error) {
	granted, err := l.rdb.SetNX(ctx, lockKey(sourceKey), owner, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if !granted {
		l.log.Debug("Lock already held", "source_key", sourceKey)
	}
	return granted, nil
}

func (l *redisProcessingLock) Release(ctx context.Context, sourceKey, owner string) error {
	deleted, err := lockReleaseScript.Run(ctx, l.rdb, []string{lockKey(sourceKey)}, owner).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		l.log.Warn("Lock release found no owned entry", "source_key", sourceKey, "owner", owner)
	}
	return nil
}
