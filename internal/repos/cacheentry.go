package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type CacheEntryRepo interface {
	GetBySourceKey(ctx context.Context, tx *gorm.DB, sourceKey string) (*types.CacheEntry, error)
	// Create inserts the entry; a concurrent first-writer winning the race is
	// reported as (false, nil) rather than an error.
	Create(ctx context.Context, tx *gorm.DB, entry *types.CacheEntry) (bool, error)
	DeleteBySourceKey(ctx context.Context, tx *gorm.DB, sourceKey string) (int64, error)
}

type cacheEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCacheEntryRepo(db *gorm.DB, baseLog *logger.Logger) CacheEntryRepo {
	return &cacheEntryRepo{db: db, log: baseLog.With("repo", "CacheEntryRepo")}
}

func (r *cacheEntryRepo) GetBySourceKey(ctx context.Context, tx *gorm.DB, sourceKey string) (*types.CacheEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CacheEntry
	if err := transaction.WithContext(ctx).
		Where("source_key = ?", sourceKey).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *cacheEntryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.CacheEntry) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		if IsDuplicateKey(err) {
			r.log.Debug("Cache entry already present, first write wins", "source_key", entry.SourceKey)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *cacheEntryRepo) DeleteBySourceKey(ctx context.Context, tx *gorm.DB, sourceKey string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("source_key = ?", sourceKey).
		Delete(&types.CacheEntry{})
	return res.RowsAffected, res.Error
}
