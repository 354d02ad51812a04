package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// memoryQuotaStore is a process-local ledger store. It backs tests and the
// degraded single-instance mode used when no database is reachable; the
// mutex gives the same linearizable check-and-increment the other stores
// provide.
type memoryQuotaStore struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewMemoryQuotaStore() QuotaStore {
	return &memoryQuotaStore{counters: make(map[string]int)}
}

func memQuotaKey(userID uuid.UUID, feature, day string) string {
	return fmt.Sprintf("%s|%s|%s", userID, feature, day)
}

func (s *memoryQuotaStore) Current(ctx context.Context, userID uuid.UUID, feature, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[memQuotaKey(userID, feature, day)], nil
}

func (s *memoryQuotaStore) IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, day string, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memQuotaKey(userID, feature, day)
	if s.counters[key] >= limit {
		return false, 0, nil
	}
	s.counters[key]++
	return true, s.counters[key], nil
}
