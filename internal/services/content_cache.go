package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/repos"
	"github.com/yungbote/studyflow-backend/internal/types"
)

// ContentCacheService is the content-addressed result store. Lookup runs
// strictly after normalization and strictly before any external call or
// quota charge; Store runs exactly once, after full pipeline success.
type ContentCacheService interface {
	Lookup(ctx context.Context, sourceKey string) (*types.CacheEntry, bool, error)
	Store(ctx context.Context, sourceKey string, recordID uuid.UUID, payload []byte) error
	// Invalidate is the only way an entry disappears; there is no TTL.
	Invalidate(ctx context.Context, sourceKey string) (bool, error)
}

type contentCacheService struct {
	log     *logger.Logger
	entries repos.CacheEntryRepo
}

func NewContentCacheService(baseLog *logger.Logger, entries repos.CacheEntryRepo) ContentCacheService {
	return &contentCacheService{
		log:     baseLog.With("service", "ContentCacheService"),
		entries: entries,
	}
}

func (s *contentCacheService) Lookup(ctx context.Context, sourceKey string) (*types.CacheEntry, bool, error) {
	entry, err := s.entries.GetBySourceKey(ctx, nil, sourceKey)
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}
	s.log.Debug("Cache hit", "source_key", sourceKey, "computed_at", entry.ComputedAt)
	return entry, true, nil
}

func (s *contentCacheService) Store(ctx context.Context, sourceKey string, recordID uuid.UUID, payload []byte) error {
	now := time.Now().UTC()
	entry := &types.CacheEntry{
		ID:         uuid.New(),
		SourceKey:  sourceKey,
		RecordID:   recordID,
		Payload:    datatypes.JSON(payload),
		ComputedAt: now,
		CreatedAt:  now,
	}
	inserted, err := s.entries.Create(ctx, nil, entry)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	if !inserted {
		s.log.Debug("Cache entry existed, keeping first write", "source_key", sourceKey)
	}
	return nil
}

func (s *contentCacheService) Invalidate(ctx context.Context, sourceKey string) (bool, error) {
	deleted, err := s.entries.DeleteBySourceKey(ctx, nil, sourceKey)
	if err != nil {
		return false, fmt.Errorf("cache invalidate: %w", err)
	}
	if deleted > 0 {
		s.log.Info("Cache entry invalidated", "source_key", sourceKey)
	}
	return deleted > 0, nil
}
