package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/kirubashankar/tools-api/internal/cache"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/config"
	"github.com/kirubashankar/tools-api/internal/handler"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/middleware"
	"github.com/kirubashankar/tools-api/internal/mx"
	"github.com/kirubashankar/tools-api/internal/service"
	ws "github.com/kirubashankar/tools-api/internal/websocket"
	"github.com/kirubashankar/tools-api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize R2 client (optional - R2-backed routes return 503 without it)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, cloud file routes disabled")
	}
	var storageClient client.StorageClient
	var cacheMirror cache.Mirror
	if r2Client != nil {
		storageClient = r2Client
		cacheMirror = r2Client
	}

	// Initialize enrichment cache (local JSON files, mirrored to R2 when available)
	resultCache := cache.New(cfg.Storage.CacheDir, cfg.Cache.ExpiryDays, cacheMirror, cfg.R2.BucketName)

	// Initialize external clients
	perplexityClient := client.NewPerplexityClient(&cfg.Perplexity)

	// Initialize job manager backed by Redis so pollers can land on any process
	manager := jobs.NewManager(jobs.NewRedisStore(redisClient))

	// Initialize MX checker with the system resolver
	checker := mx.NewChecker(nil)

	// Initialize services
	fileService := service.NewFileService(cfg.Storage.UploadDir, cfg.Storage.ResultsDir)
	if err := fileService.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create storage directories: %v", err)
	}
	mergeService := service.NewMergeService(fileService, manager, asynqClient, storageClient)
	validationService := service.NewValidationService(fileService, manager, asynqClient, storageClient, checker)
	researchService := service.NewResearchService(manager, perplexityClient, resultCache, fileService)

	// Periodic cleanup of stale uploads and results
	cleanupAge := time.Duration(cfg.Storage.CleanupHours) * time.Hour
	if n := fileService.CleanupStale(cleanupAge); n > 0 {
		log.Printf("Startup cleanup removed %d stale files", n)
	}
	go func() {
		ticker := time.NewTicker(cleanupAge)
		defer ticker.Stop()
		for range ticker.C {
			if n := fileService.CleanupStale(cleanupAge); n > 0 {
				log.Printf("Cleanup removed %d stale files", n)
			}
		}
	}()

	// Initialize handlers
	mergeHandler := handler.NewMergeHandler(mergeService, manager, validate)
	validationHandler := handler.NewValidationHandler(validationService, manager, validate)
	researchHandler := handler.NewResearchHandler(researchService, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    100 * 1024 * 1024, // 100MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.CORSOriginsList(), ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"r2":         r2Client != nil,
				"perplexity": perplexityClient.IsConfigured(),
			},
		})
	})

	// API routes
	api := app.Group("/api")

	// Merge routes
	merge := api.Group("/merge")
	merge.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), mergeHandler.Upload)
	merge.Post("/preview-match", mergeHandler.PreviewMatch)
	merge.Post("/jobs", rateLimiter.MergeLimit(cfg.RateLimit.MergePerHour), mergeHandler.CreateJob)
	merge.Get("/jobs/:jobId", mergeHandler.JobStatus)
	merge.Get("/results/:resultId/excel", mergeHandler.DownloadResultExcel)
	merge.Get("/results/:resultId", mergeHandler.DownloadResult)
	merge.Post("/r2/preview", mergeHandler.R2Preview)
	merge.Post("/r2/jobs", rateLimiter.MergeLimit(cfg.RateLimit.MergePerHour), mergeHandler.R2CreateJob)
	merge.Get("/r2/results/+", mergeHandler.R2ResultURL)

	// Validation routes
	val := api.Group("/validate")
	val.Post("/validate", rateLimiter.ValidateLimit(cfg.RateLimit.ValidatePerHour), validationHandler.Validate)
	val.Post("/upload-url", validationHandler.UploadURL)
	val.Post("/preview", validationHandler.Preview)
	val.Post("/jobs", rateLimiter.ValidateLimit(cfg.RateLimit.ValidatePerHour), validationHandler.CreateJob)
	val.Get("/jobs/:jobId", validationHandler.JobStatus)
	val.Post("/validate-file", rateLimiter.ValidateLimit(cfg.RateLimit.ValidatePerHour), validationHandler.ValidateFile)
	val.Get("/download/:jobId", validationHandler.Download)
	val.Get("/results/+", validationHandler.ResultURL)

	// Research routes
	research := api.Group("/research")
	research.Get("/field-types", researchHandler.FieldTypes)
	research.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), researchHandler.Upload)
	research.Post("/run", rateLimiter.ResearchLimit(cfg.RateLimit.ResearchPerHour), researchHandler.Run)
	research.Get("/progress/:runId", researchHandler.Progress)
	research.Get("/results/:runId", researchHandler.Results)
	research.Post("/stop/:runId", researchHandler.Stop)
	research.Get("/download/:filename", researchHandler.Download)
	research.Get("/history", researchHandler.History)
	research.Delete("/runs", researchHandler.DeleteRuns)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, manager, fileService, storageClient, checker, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	manager *jobs.Manager,
	fileService *service.FileService,
	storageClient client.StorageClient,
	checker *mx.Checker,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 6,
			Queues: map[string]int{
				"merge":    2,
				"validate": 4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mergeWorker := worker.NewMergeWorker(manager, fileService, storageClient, hub)
	validateWorker := worker.NewValidateWorker(manager, fileService, storageClient, checker, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeMerge, mergeWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeValidation, validateWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
