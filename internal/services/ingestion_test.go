package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyflow-backend/internal/normalize"
	"github.com/yungbote/studyflow-backend/internal/platform/apierr"
	"github.com/yungbote/studyflow-backend/internal/sse"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type fakeExtraction struct {
	mu      sync.Mutex
	calls   int
	err     error
	entered chan struct{} // closed once Extract is running, when non-nil
	release chan struct{} // Extract blocks until closed, when non-nil
}

func (f *fakeExtraction) Extract(ctx context.Context, src normalize.Source) (*Extraction, error) {
	f.mu.Lock()
	f.calls++
	entered, release := f.entered, f.release
	f.entered = nil
	err := f.err
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Extraction{Title: "Test Material", Text: "some extracted text"}, nil
}

func (f *fakeExtraction) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalysis struct {
	err error
	// waitForDeadline makes Analyze park until the pipeline context expires
	// before returning its result
	waitForDeadline bool
}

func (f *fakeAnalysis) Analyze(ctx context.Context, feature string, ext *Extraction) (*Analysis, error) {
	if f.waitForDeadline {
		<-ctx.Done()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Analysis{
		Title:   ext.Title,
		Summary: "a summary of " + ext.Text,
	}, nil
}

type fakeContentRecordRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*types.ContentRecord
	createErr error
}

func newFakeContentRecordRepo() *fakeContentRecordRepo {
	return &fakeContentRecordRepo{records: make(map[uuid.UUID]*types.ContentRecord)}
}

func (f *fakeContentRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.ContentRecord) ([]*types.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return records, nil
}

func (f *fakeContentRecordRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ContentRecord
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeContentRecordRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ContentRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeContentRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return nil
}

func (f *fakeContentRecordRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeContentRecordRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type ingestHarness struct {
	svc        IngestionService
	ledger     QuotaLedgerService
	cache      ContentCacheService
	cacheRepo  *fakeCacheEntryRepo
	extraction *fakeExtraction
	analysis   *fakeAnalysis
	records    *fakeContentRecordRepo
}

func newIngestHarness(t *testing.T, limits map[string]map[string]int, timeout time.Duration) *ingestHarness {
	t.Helper()
	log := testLogger(t)
	ledger := NewQuotaLedgerService(log, NewMemoryQuotaStore(), &fakeCatalog{limits: limits})
	gate := NewPermissionGateService(log, ledger)
	lock := NewMemoryProcessingLock(log)
	cacheRepo := newFakeCacheEntryRepo()
	cache := NewContentCacheService(log, cacheRepo)
	extraction := &fakeExtraction{}
	analysis := &fakeAnalysis{}
	records := newFakeContentRecordRepo()
	svc := NewIngestionService(
		log, gate, lock, cache, ledger,
		extraction, analysis, nil,
		records, sse.NewSSEHub(log), timeout,
	)
	return &ingestHarness{
		svc:        svc,
		ledger:     ledger,
		cache:      cache,
		cacheRepo:  cacheRepo,
		extraction: extraction,
		analysis:   analysis,
		records:    records,
	}
}

var defaultLimits = map[string]map[string]int{
	"youtube_processing": {"free": 2},
}

const testVideoRef = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestIngestSuccessChargesOnce(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	userID := uuid.New()

	result, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID:    userID,
		PlanType:  "free",
		Feature:   "youtube_processing",
		SourceRef: testVideoRef,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.FromCache {
		t.Fatal("first ingest reported FromCache")
	}
	if result.SourceKey != "yt:dQw4w9WgXcQ" {
		t.Fatalf("SourceKey=%q", result.SourceKey)
	}
	if h.records.count() != 1 {
		t.Fatalf("records=%d, want 1", h.records.count())
	}

	usage, err := h.ledger.Check(context.Background(), userID, "youtube_processing", "free")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if usage.Current != 1 {
		t.Fatalf("usage.Current=%d, want 1", usage.Current)
	}
}

func TestIngestCacheHitIsFree(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	firstUser, secondUser := uuid.New(), uuid.New()
	ctx := context.Background()

	if _, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: firstUser, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	}); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	result, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: secondUser, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !result.FromCache {
		t.Fatal("second ingest of the same source did not hit the cache")
	}
	if h.extraction.callCount() != 1 {
		t.Fatalf("extraction ran %d times, want 1", h.extraction.callCount())
	}
	// the second user got a record but paid nothing
	usage, _ := h.ledger.Check(ctx, secondUser, "youtube_processing", "free")
	if usage.Current != 0 {
		t.Fatalf("cache hit charged the user: current=%d", usage.Current)
	}
	if h.records.count() != 2 {
		t.Fatalf("records=%d, want one per user", h.records.count())
	}
}

func TestIngestEquivalentRefsShareCache(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	ctx := context.Background()

	if _, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	}); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	// same video through the short link
	result, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing",
		SourceRef: "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("short-link Ingest: %v", err)
	}
	if !result.FromCache {
		t.Fatal("equivalent ref did not hit the cache")
	}
}

func TestIngestQuotaExhaustedBeforeWork(t *testing.T) {
	h := newIngestHarness(t, map[string]map[string]int{
		"youtube_processing": {"free": 0},
	}, time.Minute)

	_, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err=%v, want ErrQuotaExceeded", err)
	}
	if h.extraction.callCount() != 0 {
		t.Fatal("extraction ran despite exhausted quota")
	}
	if h.records.count() != 0 {
		t.Fatal("record created despite exhausted quota")
	}
}

func TestIngestMalformedRefRejectedEarly(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)

	_, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing",
		SourceRef: "https://youtube.com/watch?v=tooshort",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
	if h.extraction.callCount() != 0 {
		t.Fatal("extraction ran for a malformed ref")
	}
}

func TestIngestConcurrentSameSourceOneWinner(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.extraction.entered = entered
	h.extraction.release = release

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.svc.Ingest(ctx, IngestRequest{
			UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
		})
		firstDone <- err
	}()

	<-entered // first request holds the lock inside extraction

	_, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("second request err=%v, want ErrAlreadyProcessing", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first request failed: %v", err)
	}
}

func TestIngestLockReleasedAfterFailure(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	h.extraction.err = fmt.Errorf("%w: upstream hiccup", ErrExtraction)
	_, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: userID, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err=%v, want ErrExtraction", err)
	}

	// a failed job consumes no allowance
	usage, _ := h.ledger.Check(ctx, userID, "youtube_processing", "free")
	if usage.Current != 0 {
		t.Fatalf("failed ingest charged quota: current=%d", usage.Current)
	}

	// and releases the lock for a retry
	h.extraction.err = nil
	if _, err := h.svc.Ingest(ctx, IngestRequest{
		UserID: userID, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestIngestTimeoutMapped(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, 50*time.Millisecond)
	h.extraction.release = make(chan struct{}) // never closed; Extract waits on ctx

	_, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: uuid.New(), PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if !errors.Is(err, ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want timeout", err)
	}
}

func TestIngestCacheReadErrorNotPersistence(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	h.cacheRepo.getErr = fmt.Errorf("connection reset")
	userID := uuid.New()

	_, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: userID, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if err == nil {
		t.Fatal("expected error from broken cache read")
	}
	// the work was never computed, so this is not a persistence failure
	if errors.Is(err, ErrPersistence) {
		t.Fatalf("cache read error reported as persistence: %v", err)
	}
	if code := AsAPIError(err).Code; code != apierr.CodeUnknown {
		t.Fatalf("code=%q, want %q", code, apierr.CodeUnknown)
	}
	if h.extraction.callCount() != 0 {
		t.Fatal("extraction ran despite failed cache read")
	}
	usage, _ := h.ledger.Check(context.Background(), userID, "youtube_processing", "free")
	if usage.Current != 0 {
		t.Fatalf("failed cache read charged quota: current=%d", usage.Current)
	}
}

func TestIngestCommitOutlivesPipelineDeadline(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, 20*time.Millisecond)
	h.analysis.waitForDeadline = true
	userID := uuid.New()

	// analysis finishes right as the deadline fires; persisting and charging
	// must still go through
	result, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: userID, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if h.records.count() != 1 {
		t.Fatalf("records=%d, want 1", h.records.count())
	}
	usage, _ := h.ledger.Check(context.Background(), userID, "youtube_processing", "free")
	if usage.Current != 1 {
		t.Fatalf("usage.Current=%d, want 1", usage.Current)
	}
	if result.FromCache {
		t.Fatal("fresh ingest reported FromCache")
	}
}

func TestIngestPersistenceFailureNotSuccess(t *testing.T) {
	h := newIngestHarness(t, defaultLimits, time.Minute)
	h.records.createErr = fmt.Errorf("disk full")
	userID := uuid.New()

	_, err := h.svc.Ingest(context.Background(), IngestRequest{
		UserID: userID, PlanType: "free", Feature: "youtube_processing", SourceRef: testVideoRef,
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err=%v, want ErrPersistence", err)
	}
	usage, _ := h.ledger.Check(context.Background(), userID, "youtube_processing", "free")
	if usage.Current != 0 {
		t.Fatalf("persistence failure charged quota: current=%d", usage.Current)
	}
}
