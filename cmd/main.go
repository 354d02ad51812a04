package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/studyflow-backend/internal/clients/gcp"
	redisclient "github.com/yungbote/studyflow-backend/internal/clients/redis"
	"github.com/yungbote/studyflow-backend/internal/db"
	"github.com/yungbote/studyflow-backend/internal/handlers"
	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/middleware"
	"github.com/yungbote/studyflow-backend/internal/observability"
	"github.com/yungbote/studyflow-backend/internal/repos"
	"github.com/yungbote/studyflow-backend/internal/server"
	"github.com/yungbote/studyflow-backend/internal/services"
	"github.com/yungbote/studyflow-backend/internal/sse"
	"github.com/yungbote/studyflow-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	pipelineTimeout := utils.GetEnvAsInt("INGEST_TIMEOUT_SECONDS", 300, log)
	lockTTL := utils.GetEnvAsInt("INGEST_LOCK_TTL_SECONDS", 900, log)
	plansPath := utils.GetEnv("PLANS_CONFIG_PATH", "configs/plans.yaml", log)
	port := utils.GetEnv("PORT", "8080", log)

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "studyflow-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Fatal("Database auto migration failed", "error", err)
	}
	theDB := databaseService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(theDB, log)
	userTokenRepo := repos.NewUserTokenRepo(theDB, log)
	usageCounterRepo := repos.NewUsageCounterRepo(theDB, log)
	planLimitRepo := repos.NewPlanLimitRepo(theDB, log)
	cacheEntryRepo := repos.NewCacheEntryRepo(theDB, log)
	contentRecordRepo := repos.NewContentRecordRepo(theDB, log)

	// Redis: optional; without it quota and locking run on the database and
	// in-process memory, which only a single instance may rely on.
	rdb, rErr := redisclient.NewClientFromEnv(log)
	if rErr != nil {
		log.Warn("Redis unavailable, using in-process fallbacks", "error", rErr)
		rdb = nil
	}

	// SSE
	sseHub := sse.NewSSEHub(log)

	// Services
	log.Info("Setting up Services from main...")
	planCatalog := services.NewPlanCatalogService(theDB, log, planLimitRepo)
	if err := planCatalog.SeedFromConfig(context.Background(), plansPath); err != nil {
		log.Fatal("Plan catalog seed failed", "error", err)
	}

	var quotaStore services.QuotaStore
	if rdb != nil && utils.GetEnvAsBool("QUOTA_USE_REDIS", false, log) {
		quotaStore = services.NewRedisQuotaStore(rdb)
	} else {
		quotaStore = services.NewDBQuotaStore(usageCounterRepo)
	}
	quotaLedger := services.NewQuotaLedgerService(log, quotaStore, planCatalog)
	permissionGate := services.NewPermissionGateService(log, quotaLedger)

	var processingLock services.ProcessingLockService
	if rdb != nil {
		processingLock = services.NewRedisProcessingLock(log, rdb, time.Duration(lockTTL)*time.Second)
	} else {
		processingLock = services.NewMemoryProcessingLock(log)
	}

	contentCache := services.NewContentCacheService(log, cacheEntryRepo)

	bucketService, err := gcp.NewBucket(log)
	if err != nil {
		log.Fatal("Could not init storage bucket", "error", err)
	}
	speechService, err := gcp.NewSpeech(log)
	if err != nil {
		log.Fatal("Could not init speech client", "error", err)
	}
	documentService, err := gcp.NewDocument(log)
	if err != nil {
		log.Fatal("Could not init document client", "error", err)
	}
	visionService, err := gcp.NewVision(log)
	if err != nil {
		log.Fatal("Could not init vision client", "error", err)
	}

	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAIClient", "error", err)
	}

	extractionService := services.NewContentExtractionService(log, bucketService, speechService, documentService, visionService)
	analysisService := services.NewAnalysisService(log, openaiClient)

	coverService, err := services.NewCoverArtService(log, bucketService)
	if err != nil {
		// covers are decorative; ingestion proceeds without them
		log.Warn("Could not init CoverArtService", "error", err)
		coverService = nil
	}

	authService := services.NewAuthService(
		theDB, log, userRepo, userTokenRepo, rdb,
		jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second,
		time.Duration(refreshTokenTTL)*time.Second,
	)
	contentService := services.NewContentService(log, contentRecordRepo)
	ingestionService := services.NewIngestionService(
		log,
		permissionGate,
		processingLock,
		contentCache,
		quotaLedger,
		extractionService,
		analysisService,
		coverService,
		contentRecordRepo,
		sseHub,
		time.Duration(pipelineTimeout)*time.Second,
	)

	// Handlers
	log.Info("Setting up Handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	healthcheckHandler := handlers.NewHealthcheckHandler(theDB)
	ingestHandler := handlers.NewIngestHandler(ingestionService)
	usageHandler := handlers.NewUsageHandler(permissionGate, planCatalog)
	contentHandler := handlers.NewContentHandler(contentService)
	sseHandler := handlers.NewSSEHandler(sseHub)
	adminHandler := handlers.NewAdminHandler(contentCache)

	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	router := server.NewRouter(server.RouterConfig{
		Log:                log,
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		HealthcheckHandler: healthcheckHandler,
		IngestHandler:      ingestHandler,
		UsageHandler:       usageHandler,
		ContentHandler:     contentHandler,
		SSEHandler:         sseHandler,
		AdminHandler:       adminHandler,
	})

	log.Info("Starting server...", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
