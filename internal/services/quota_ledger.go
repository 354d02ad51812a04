package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

// The quota day boundary is server UTC. The day string is part of the
// counter's storage key, so a user changing device timezone cannot mint a
// fresh allowance, and no scheduled reset job exists.
func DayKeyUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

type Usage struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

// QuotaStore is the storage primitive behind the ledger. IncrementIfAllowed
// must be one atomic operation at the store: a conditional upsert (database)
// or a Lua script (redis), never a read-then-write pair in Go.
type QuotaStore interface {
	Current(ctx context.Context, userID uuid.UUID, feature, day string) (int, error)
	IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, day string, limit int) (bool, int, error)
}

type QuotaLedgerService interface {
	// Check is read-only; it never mutates the counter.
	Check(ctx context.Context, userID uuid.UUID, feature, planType string) (Usage, error)
	// IncrementIfAllowed atomically charges one use when under the limit.
	// limit == -1 admits without touching the store; limit == 0 denies.
	IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, planType string) (bool, int, error)
}

type quotaLedgerService struct {
	log     *logger.Logger
	store   QuotaStore
	catalog PlanCatalogService
	now     func() time.Time
}

func NewQuotaLedgerService(baseLog *logger.Logger, store QuotaStore, catalog PlanCatalogService) QuotaLedgerService {
	return &quotaLedgerService{
		log:     baseLog.With("service", "QuotaLedgerService"),
		store:   store,
		catalog: catalog,
		now:     time.Now,
	}
}

func (s *quotaLedgerService) Check(ctx context.Context, userID uuid.UUID, feature, planType string) (Usage, error) {
	limit, err := s.catalog.DailyLimit(ctx, feature, planType)
	if err != nil {
		return Usage{}, err
	}
	if limit == types.UnlimitedDailyLimit {
		return Usage{Allowed: true, Current: 0, Limit: limit, Remaining: types.UnlimitedDailyLimit}, nil
	}

	current, err := s.store.Current(ctx, userID, feature, DayKeyUTC(s.now()))
	if err != nil {
		return Usage{}, fmt.Errorf("load usage counter: %w", err)
	}
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Allowed:   current < limit,
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

func (s *quotaLedgerService) IncrementIfAllowed(ctx context.Context, userID uuid.UUID, feature, planType string) (bool, int, error) {
	limit, err := s.catalog.DailyLimit(ctx, feature, planType)
	if err != nil {
		return false, 0, err
	}
	if limit == types.UnlimitedDailyLimit {
		return true, 0, nil
	}
	if limit <= 0 {
		return false, 0, nil
	}

	day := DayKeyUTC(s.now())
	admitted, newCount, err := s.store.IncrementIfAllowed(ctx, userID, feature, day, limit)
	if err != nil {
		return false, 0, fmt.Errorf("charge usage counter: %w", err)
	}
	if !admitted {
		s.log.Debug("Quota charge rejected", "user_id", userID, "feature", feature, "day", day, "limit", limit)
	}
	return admitted, newCount, nil
}
