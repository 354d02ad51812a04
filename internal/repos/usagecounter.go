package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type UsageCounterRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature, day string) (*types.UsageCounter, error)
	// IncrementIfAllowed performs the check-and-charge as ONE conditional
	// upsert so two callers racing for the last slot can never both be
	// admitted. Callers must pre-filter limit <= 0 (0 denies, -1 bypasses
	// the ledger entirely).
	IncrementIfAllowed(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature, day string, limit int) (bool, int, error)
}

type usageCounterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageCounterRepo(db *gorm.DB, baseLog *logger.Logger) UsageCounterRepo {
	return &usageCounterRepo{db: db, log: baseLog.With("repo", "UsageCounterRepo")}
}

func (r *usageCounterRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature, day string) (*types.UsageCounter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UsageCounter
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND feature = ? AND day = ?", userID, feature, day).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// The upsert below is the only place usage counters are mutated. The WHERE on
// the conflict branch keeps the row untouched once count has reached the
// limit, and the absence of a returned row is how "not admitted" is detected.
// The statement is valid on both Postgres and SQLite (>= 3.35).
const incrementIfAllowedSQL = `
INSERT INTO usage_counter (id, user_id, feature, day, count, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id, feature, day)
DO UPDATE SET count = usage_counter.count + 1, updated_at = excluded.updated_at
WHERE usage_counter.count < ?
RETURNING count`

func (r *usageCounterRepo) IncrementIfAllowed(ctx context.Context, tx *gorm.DB, userID uuid.UUID, feature, day string, limit int) (bool, int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now().UTC()
	var newCount int
	res := transaction.WithContext(ctx).
		Raw(incrementIfAllowedSQL, uuid.New(), userID, feature, day, now, now, limit).
		Scan(&newCount)
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return false, 0, nil
	}
	return true, newCount, nil
}
