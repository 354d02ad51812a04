package repos

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s/usage.db?_busy_timeout=5000", t.TempDir())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// sqlite allows one writer at a time
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.UsageCounter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestUsageCounterRepo(t *testing.T) UsageCounterRepo {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewUsageCounterRepo(newTestDB(t), log)
}

func TestUsageCounterIncrementStopsAtLimit(t *testing.T) {
	repo := newTestUsageCounterRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	for want := 1; want <= 3; want++ {
		admitted, count, err := repo.IncrementIfAllowed(ctx, nil, userID, "pdf_processing", "2026-08-29", 3)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if !admitted || count != want {
			t.Fatalf("increment %d: admitted=%v count=%d", want, admitted, count)
		}
	}

	admitted, _, err := repo.IncrementIfAllowed(ctx, nil, userID, "pdf_processing", "2026-08-29", 3)
	if err != nil {
		t.Fatalf("increment past limit: %v", err)
	}
	if admitted {
		t.Fatal("expected denial once count reached the limit")
	}

	row, err := repo.Get(ctx, nil, userID, "pdf_processing", "2026-08-29")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row == nil || row.Count != 3 {
		t.Fatalf("expected count pinned at 3, got %+v", row)
	}
}

func TestUsageCounterConcurrentIncrementsAdmitExactlyLimit(t *testing.T) {
	repo := newTestUsageCounterRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	const callers = 5
	const limit = 2

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			admitted, _, err := repo.IncrementIfAllowed(ctx, nil, userID, "youtube_processing", "2026-08-29", limit)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			results <- admitted
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Fatalf("expected exactly %d admissions, got %d", limit, admitted)
	}

	row, err := repo.Get(ctx, nil, userID, "youtube_processing", "2026-08-29")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row == nil || row.Count != limit {
		t.Fatalf("expected count to land at %d, got %+v", limit, row)
	}
}

func TestUsageCounterDaysAreIndependentRows(t *testing.T) {
	repo := newTestUsageCounterRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	if admitted, _, err := repo.IncrementIfAllowed(ctx, nil, userID, "text_processing", "2026-08-29", 1); err != nil || !admitted {
		t.Fatalf("day one: admitted=%v err=%v", admitted, err)
	}
	if admitted, _, err := repo.IncrementIfAllowed(ctx, nil, userID, "text_processing", "2026-08-29", 1); err != nil || admitted {
		t.Fatalf("day one exhausted: admitted=%v err=%v", admitted, err)
	}
	if admitted, count, err := repo.IncrementIfAllowed(ctx, nil, userID, "text_processing", "2026-08-30", 1); err != nil || !admitted || count != 1 {
		t.Fatalf("new day: admitted=%v count=%d err=%v", admitted, count, err)
	}
}

func TestUsageCounterGetMissingReturnsNil(t *testing.T) {
	repo := newTestUsageCounterRepo(t)

	row, err := repo.Get(context.Background(), nil, uuid.New(), "pdf_processing", "2026-08-29")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for missing row, got %+v", row)
	}
}
