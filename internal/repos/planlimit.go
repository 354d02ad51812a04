package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type PlanLimitRepo interface {
	GetByFeaturePlan(ctx context.Context, tx *gorm.DB, feature, planType string) (*types.PlanLimit, error)
	GetByPlan(ctx context.Context, tx *gorm.DB, planType string) ([]*types.PlanLimit, error)
	Upsert(ctx context.Context, tx *gorm.DB, limits []*types.PlanLimit) error
}

type planLimitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanLimitRepo(db *gorm.DB, baseLog *logger.Logger) PlanLimitRepo {
	return &planLimitRepo{db: db, log: baseLog.With("repo", "PlanLimitRepo")}
}

func (r *planLimitRepo) GetByFeaturePlan(ctx context.Context, tx *gorm.DB, feature, planType string) (*types.PlanLimit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PlanLimit
	if err := transaction.WithContext(ctx).
		Where("feature = ? AND plan_type = ?", feature, planType).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *planLimitRepo) GetByPlan(ctx context.Context, tx *gorm.DB, planType string) ([]*types.PlanLimit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PlanLimit
	if err := transaction.WithContext(ctx).
		Where("plan_type = ?", planType).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *planLimitRepo) Upsert(ctx context.Context, tx *gorm.DB, limits []*types.PlanLimit) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(limits) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, pl := range limits {
		if pl.ID == uuid.Nil {
			pl.ID = uuid.New()
		}
		if pl.CreatedAt.IsZero() {
			pl.CreatedAt = now
		}
		pl.UpdatedAt = now
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "feature"}, {Name: "plan_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"daily_limit", "updated_at"}),
		}).
		Create(&limits).Error
}
