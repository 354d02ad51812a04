package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/repos"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type ContentService interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*types.ContentRecord, error)
	Get(ctx context.Context, userID, recordID uuid.UUID) (*types.ContentRecord, error)
	Delete(ctx context.Context, userID, recordID uuid.UUID) error
}

type contentService struct {
	log     *logger.Logger
	records repos.ContentRecordRepo
}

func NewContentService(baseLog *logger.Logger, records repos.ContentRecordRepo) ContentService {
	return &contentService{
		log:     baseLog.With("service", "ContentService"),
		records: records,
	}
}

func (s *contentService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*types.ContentRecord, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrValidation)
	}
	return s.records.GetByUserID(ctx, nil, userID)
}

func (s *contentService) Get(ctx context.Context, userID, recordID uuid.UUID) (*types.ContentRecord, error) {
	found, err := s.records.GetByIDs(ctx, nil, []uuid.UUID{recordID})
	if err != nil {
		return nil, fmt.Errorf("load content record: %w", err)
	}
	if len(found) == 0 || found[0].UserID != userID {
		// ownership mismatch reads as not-found so record IDs are not probeable
		return nil, fmt.Errorf("%w: record not found", ErrValidation)
	}
	return found[0], nil
}

func (s *contentService) Delete(ctx context.Context, userID, recordID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, recordID); err != nil {
		return err
	}
	return s.records.SoftDeleteByIDs(ctx, nil, []uuid.UUID{recordID})
}
