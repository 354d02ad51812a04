package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/studyflow-backend/internal/repos"
)

// dbQuotaStore delegates to the usage counter repo, whose conditional upsert
// is the single atomic statement the ledger contract requires.
type dbQuotaStore struct {
	counters repos.UsageCounterRepo
}

func NewDBQuotaStore(counters repos.UsageCounterRepo) QuotaStore {
	return &dbQuotaStore{counters: counters}
}

func (s *dbQuotaStore) Current(ctx context.Context, userID uuid.UUID, feature, day string) (int, error) {
	row, err := s.counters.Get(ctx, nil, userID, feature, day)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return row.Count, nil
}

func (s *dbQuotaStore) IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, day string, limit int) (bool, int, error) {
	return s.counters.IncrementIfAllowed(ctx, nil, userID, feature, day, limit)
}
