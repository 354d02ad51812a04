package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/normalize"
	"github.com/yungbote/studyflow-backend/internal/progress"
	"github.com/yungbote/studyflow-backend/internal/repos"
	"github.com/yungbote/studyflow-backend/internal/sse"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type IngestRequest struct {
	UserID    uuid.UUID
	PlanType  string
	Feature   string
	SourceRef string
}

type IngestResult struct {
	RecordID  uuid.UUID       `json:"record_id"`
	SourceKey string          `json:"source_key"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	FromCache bool            `json:"from_cache"`
	Payload   json.RawMessage `json:"payload"`
	CoverURL  string          `json:"cover_url,omitempty"`
}

// IngestionService runs the full pipeline for one source: permission gate,
// processing lock, cache lookup, extraction, analysis, persistence, then the
// quota charge. The charge is last so a failed pipeline never consumes
// allowance, and cache hits are never charged at all.
type IngestionService interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
}

type ingestionService struct {
	log        *logger.Logger
	gate       PermissionGateService
	lock       ProcessingLockService
	cache      ContentCacheService
	ledger     QuotaLedgerService
	extraction ContentExtractionService
	analysis   AnalysisService
	cover      CoverArtService
	records    repos.ContentRecordRepo
	hub        *sse.SSEHub

	pipelineTimeout time.Duration
}

func NewIngestionService(
	log *logger.Logger,
	gate PermissionGateService,
	lock ProcessingLockService,
	cache ContentCacheService,
	ledger QuotaLedgerService,
	extraction ContentExtractionService,
	analysis AnalysisService,
	cover CoverArtService,
	records repos.ContentRecordRepo,
	hub *sse.SSEHub,
	pipelineTimeout time.Duration,
) IngestionService {
	if pipelineTimeout <= 0 {
		pipelineTimeout = 5 * time.Minute
	}
	return &ingestionService{
		log:             log.With("service", "IngestionService"),
		gate:            gate,
		lock:            lock,
		cache:           cache,
		ledger:          ledger,
		extraction:      extraction,
		analysis:        analysis,
		cover:           cover,
		records:         records,
		hub:             hub,
		pipelineTimeout: pipelineTimeout,
	}
}

func (s *ingestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	// validation happens before any lock, charge, or external call
	src, err := normalize.ParseSourceRef(req.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrValidation)
	}

	decision, err := s.gate.CheckFeatureUsage(ctx, req.UserID, req.PlanType, req.Feature)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: feature %q limit %d reached", ErrQuotaExceeded, req.Feature, decision.Limit)
	}

	owner := uuid.New().String()
	acquired, err := s.lock.Acquire(ctx, src.Key, owner)
	if err != nil {
		return nil, fmt.Errorf("acquire processing lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: source %s", ErrAlreadyProcessing, src.Key)
	}
	defer func() {
		// release context is detached so a timed-out pipeline still unlocks
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if rErr := s.lock.Release(releaseCtx, src.Key, owner); rErr != nil {
			s.log.Error("Failed to release processing lock", "source_key", src.Key, "error", rErr)
		}
	}()

	est := progress.NewEstimator(progress.Options{
		OnUpdate: func(value float64, message string) {
			s.hub.Broadcast(sse.SSEMessage{
				Channel: req.UserID.String(),
				Event:   sse.SSEEventIngestProgress,
				Data: map[string]any{
					"source_key": src.Key,
					"value":      value,
					"message":    message,
				},
			})
		},
	})
	defer est.Stop()

	result, err := s.run(ctx, req, src, est)
	if err != nil {
		est.Stop()
		s.hub.Broadcast(sse.SSEMessage{
			Channel: req.UserID.String(),
			Event:   sse.SSEEventIngestFailed,
			Data: map[string]any{
				"source_key": src.Key,
				"code":       AsAPIError(err).Code,
			},
		})
		return nil, err
	}

	est.Complete("done")
	s.hub.Broadcast(sse.SSEMessage{
		Channel: req.UserID.String(),
		Event:   sse.SSEEventIngestCompleted,
		Data:    result,
	})
	return result, nil
}

func (s *ingestionService) run(ctx context.Context, req IngestRequest, src normalize.Source, est *progress.Estimator) (*IngestResult, error) {
	est.Tick(0.05, "checking cache")

	entry, hit, err := s.cache.Lookup(ctx, src.Key)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if hit {
		return s.fromCache(ctx, req, src, entry, est)
	}

	// the pipeline deadline bounds extraction and analysis only; persist and
	// charge below run on a detached context
	pipeCtx, cancel := context.WithTimeout(ctx, s.pipelineTimeout)
	defer cancel()

	est.Tick(0.15, "extracting content")
	ext, err := s.extraction.Extract(pipeCtx, src)
	if err != nil {
		return nil, s.mapPipelineErr(err)
	}

	est.Tick(0.45, "analyzing content")
	analysis, err := s.analysis.Analyze(pipeCtx, req.Feature, ext)
	if err != nil {
		return nil, s.mapPipelineErr(err)
	}

	est.Tick(0.75, "rendering cover")
	coverURL := ""
	if s.cover != nil {
		if url, cErr := s.cover.Render(pipeCtx, src, analysis.Title); cErr != nil {
			s.log.Warn("Cover render failed, continuing without cover", "source_key", src.Key, "error", cErr)
		} else {
			coverURL = url
		}
	}

	est.Tick(0.85, "saving")
	commitCtx, commitCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer commitCancel()

	payload, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrPersistence, err)
	}
	record := &types.ContentRecord{
		ID:         uuid.New(),
		UserID:     req.UserID,
		SourceKey:  src.Key,
		SourceKind: src.Kind,
		Feature:    req.Feature,
		Title:      analysis.Title,
		Payload:    datatypes.JSON(payload),
		CoverURL:   coverURL,
	}
	if _, err := s.records.Create(commitCtx, nil, []*types.ContentRecord{record}); err != nil {
		return nil, fmt.Errorf("%w: save content record: %v", ErrPersistence, err)
	}

	// cache store is best effort; the record is already durable
	if err := s.cache.Store(commitCtx, src.Key, record.ID, payload); err != nil {
		s.log.Warn("Cache store failed after successful pipeline", "source_key", src.Key, "error", err)
	}

	est.Tick(0.95, "finalizing")
	admitted, _, err := s.ledger.IncrementIfAllowed(commitCtx, req.UserID, req.Feature, req.PlanType)
	if err != nil {
		return nil, fmt.Errorf("commit quota charge: %w", err)
	}
	if !admitted {
		// lost the race since the gate check; the work stands but the day is
		// spent, so report the quota as the outcome
		return nil, fmt.Errorf("%w: feature %q", ErrQuotaExceeded, req.Feature)
	}

	return &IngestResult{
		RecordID:  record.ID,
		SourceKey: src.Key,
		Kind:      src.Kind,
		Title:     analysis.Title,
		FromCache: false,
		Payload:   payload,
		CoverURL:  coverURL,
	}, nil
}

// fromCache materializes a user-owned record from a cached computation. No
// extraction, no analysis, and no quota charge happen on this path.
func (s *ingestionService) fromCache(ctx context.Context, req IngestRequest, src normalize.Source, entry *types.CacheEntry, est *progress.Estimator) (*IngestResult, error) {
	est.Tick(0.6, "reusing cached result")

	var title, coverURL string
	if originals, err := s.records.GetByIDs(ctx, nil, []uuid.UUID{entry.RecordID}); err == nil && len(originals) > 0 {
		title = originals[0].Title
		coverURL = originals[0].CoverURL
	}
	if title == "" {
		var payload struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(entry.Payload, &payload)
		title = payload.Title
	}

	record := &types.ContentRecord{
		ID:         uuid.New(),
		UserID:     req.UserID,
		SourceKey:  src.Key,
		SourceKind: src.Kind,
		Feature:    req.Feature,
		Title:      title,
		Payload:    entry.Payload,
		CoverURL:   coverURL,
	}
	if _, err := s.records.Create(ctx, nil, []*types.ContentRecord{record}); err != nil {
		return nil, fmt.Errorf("%w: save content record: %v", ErrPersistence, err)
	}

	return &IngestResult{
		RecordID:  record.ID,
		SourceKey: src.Key,
		Kind:      src.Kind,
		Title:     title,
		FromCache: true,
		Payload:   json.RawMessage(entry.Payload),
		CoverURL:  coverURL,
	}, nil
}

func (s *ingestionService) mapPipelineErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: pipeline window elapsed: %v", ErrTimeout, err)
	}
	return err
}
