package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryLockSingleWinner(t *testing.T) {
	lock := NewMemoryProcessingLock(testLogger(t))

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		owner := string(rune('a' + i))
		go func() {
			defer wg.Done()
			ok, err := lock.Acquire(context.Background(), "yt:abc", owner)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if ok {
				wins <- owner
			}
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("%d goroutines acquired the lock, want exactly 1", winners)
	}
}

func TestMemoryLockReacquireAfterRelease(t *testing.T) {
	lock := NewMemoryProcessingLock(testLogger(t))
	ctx := context.Background()

	ok, _ := lock.Acquire(ctx, "yt:abc", "job1")
	if !ok {
		t.Fatal("first acquire failed")
	}
	if ok, _ := lock.Acquire(ctx, "yt:abc", "job2"); ok {
		t.Fatal("second acquire succeeded while held")
	}
	if err := lock.Release(ctx, "yt:abc", "job1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := lock.Acquire(ctx, "yt:abc", "job2"); !ok {
		t.Fatal("acquire after release failed")
	}
}

func TestMemoryLockNonOwnerCannotRelease(t *testing.T) {
	lock := NewMemoryProcessingLock(testLogger(t))
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "yt:abc", "job1"); !ok {
		t.Fatal("acquire failed")
	}
	if err := lock.Release(ctx, "yt:abc", "intruder"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// still held by job1
	if ok, _ := lock.Acquire(ctx, "yt:abc", "job3"); ok {
		t.Fatal("lock was released by a non-owner")
	}
}

func TestMemoryLockIndependentKeys(t *testing.T) {
	lock := NewMemoryProcessingLock(testLogger(t))
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "yt:abc", "job1"); !ok {
		t.Fatal("acquire key1 failed")
	}
	if ok, _ := lock.Acquire(ctx, "yt:xyz", "job2"); !ok {
		t.Fatal("acquire of an unrelated key was blocked")
	}
}

func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockAcquireRelease(t *testing.T) {
	rdb := newTestRedis(t)
	lock := NewRedisProcessingLock(testLogger(t), rdb, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "file:deadbeef", "job1")
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := lock.Acquire(ctx, "file:deadbeef", "job2"); ok {
		t.Fatal("second acquire succeeded while held")
	}

	// non-owner release is a no-op
	if err := lock.Release(ctx, "file:deadbeef", "job2"); err != nil {
		t.Fatalf("Release by non-owner: %v", err)
	}
	if ok, _ := lock.Acquire(ctx, "file:deadbeef", "job3"); ok {
		t.Fatal("lock was released by a non-owner")
	}

	if err := lock.Release(ctx, "file:deadbeef", "job1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := lock.Acquire(ctx, "file:deadbeef", "job3"); !ok {
		t.Fatal("acquire after owner release failed")
	}
}

func TestRedisLockExpiresViaTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	lock := NewRedisProcessingLock(testLogger(t), rdb, time.Second)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "yt:orphaned", "crashed-job"); !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := lock.Acquire(ctx, "yt:orphaned", "job2"); !ok {
		t.Fatal("lock did not expire after TTL")
	}
}

func TestRedisQuotaStoreIncrement(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewRedisQuotaStore(rdb)
	ctx := context.Background()

	ledger := NewQuotaLedgerService(testLogger(t), store, &fakeCatalog{limits: map[string]map[string]int{
		"youtube_processing": {"free": 3},
	}})

	userID := uuid.New()
	for i := 1; i <= 3; i++ {
		ok, count, err := ledger.IncrementIfAllowed(ctx, userID, "youtube_processing", "free")
		if err != nil {
			t.Fatalf("IncrementIfAllowed #%d: %v", i, err)
		}
		if !ok || count != i {
			t.Fatalf("charge #%d: ok=%v count=%d", i, ok, count)
		}
	}
	ok, _, err := ledger.IncrementIfAllowed(ctx, userID, "youtube_processing", "free")
	if err != nil {
		t.Fatalf("IncrementIfAllowed over limit: %v", err)
	}
	if ok {
		t.Fatal("charge over limit was admitted")
	}

	usage, err := ledger.Check(ctx, userID, "youtube_processing", "free")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if usage.Current != 3 || usage.Remaining != 0 || usage.Allowed {
		t.Fatalf("usage after exhaustion: %+v", usage)
	}
}
