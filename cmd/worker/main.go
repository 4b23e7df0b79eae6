// Package main implements the pipeline worker binary. It connects to the
// database, Redis broker, and external providers, registers one handler per
// queue, and runs workers until a shutdown signal arrives.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/redis/go-redis/v9"

	"github.com/calliope-press/pipeline/internal/cache"
	"github.com/calliope-press/pipeline/internal/config"
	"github.com/calliope-press/pipeline/internal/events"
	"github.com/calliope-press/pipeline/internal/mailer"
	"github.com/calliope-press/pipeline/internal/pipeline"
	"github.com/calliope-press/pipeline/internal/platform/gemini"
	"github.com/calliope-press/pipeline/internal/platform/googletts"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/platform/postgres"
	"github.com/calliope-press/pipeline/internal/queue"
	"github.com/calliope-press/pipeline/internal/storage"
)

// shutdownTimeout bounds how long in-flight jobs may run after a shutdown
// signal before the process gives up waiting.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	appLogger.Info("worker starting",
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("storage_backend", cfg.Storage.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := postgres.MigrateUp(ctx, db, appLogger); err != nil {
		return err
	}
	articles := postgres.NewPostgresArticleStore(db, appLogger)

	cacheClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = cacheClient.Close() }()

	articleCache, err := cache.New(cacheClient, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	generator, err := gemini.NewGeminiGenerator(ctx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	synthesizer, err := googletts.New(ctx, appLogger, cfg.Speech)
	if err != nil {
		return fmt.Errorf("failed to create speech synthesizer: %w", err)
	}
	defer func() { _ = synthesizer.Close() }()

	objects, err := newObjectStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create object storage: %w", err)
	}
	uploader := storage.NewUploader(objects)

	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP, appLogger)

	emitter := events.NewInMemoryEventEmitter(appLogger)
	emitter.RegisterHandler(events.NewLoggingHandler(appLogger))

	registry := queue.NewRegistry(appLogger)
	broker := queue.NewBroker(cfg.Redis)
	manager := queue.NewManager(broker, registry, emitter, queue.JobOptions{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
	}, appLogger)

	// The manager is created before registration because the generation
	// handler enqueues narration jobs through it.
	if err := registerHandlers(registry, manager, cfg, handlerDeps{
		db:          db,
		articles:    articles,
		generator:   generator,
		synthesizer: synthesizer,
		uploader:    uploader,
		objects:     objects,
		cache:       articleCache,
		mailer:      smtpMailer,
		logger:      appLogger,
	}); err != nil {
		return err
	}

	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	if !manager.Available() {
		return errors.New("job queue broker is unavailable: check redis configuration")
	}

	if err := manager.StartWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	appLogger.Info("workers started, waiting for jobs")

	<-ctx.Done()
	appLogger.Info("shutdown signal received, draining in-flight jobs")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	appLogger.Info("worker stopped cleanly")
	return nil
}

// handlerDeps bundles the collaborators shared by the queue handlers.
type handlerDeps struct {
	db          *sql.DB
	articles    *postgres.PostgresArticleStore
	generator   *gemini.GeminiGenerator
	synthesizer *googletts.Synthesizer
	uploader    *storage.Uploader
	objects     storage.ObjectStorage
	cache       *cache.Cache
	mailer      mailer.Mailer
	logger      *slog.Logger
}

// registerHandlers wires one pipeline handler per queue with the configured
// concurrency ceilings.
func registerHandlers(
	registry *queue.Registry,
	manager *queue.Manager,
	cfg *config.Config,
	deps handlerDeps,
) error {
	generationHandler, err := pipeline.NewGenerationHandler(
		deps.articles, deps.generator, deps.uploader, deps.cache, manager, deps.logger)
	if err != nil {
		return err
	}
	narrationHandler, err := pipeline.NewNarrationHandler(
		deps.articles, deps.synthesizer, deps.objects, deps.cache,
		cfg.Speech.ChunkByteLimit, deps.logger)
	if err != nil {
		return err
	}
	emailHandler, err := pipeline.NewEmailHandler(deps.mailer, deps.logger)
	if err != nil {
		return err
	}
	imageHandler, err := pipeline.NewImageUploadHandler(
		deps.db, deps.articles, deps.uploader, deps.cache, deps.logger)
	if err != nil {
		return err
	}

	if err := registry.Register(queue.QueueGeneration, cfg.Queue.GenerationConcurrency, generationHandler.Handle); err != nil {
		return err
	}
	if err := registry.Register(queue.QueueNarration, cfg.Queue.NarrationConcurrency, narrationHandler.Handle); err != nil {
		return err
	}
	if err := registry.Register(queue.QueueEmail, cfg.Queue.EmailConcurrency, emailHandler.Handle); err != nil {
		return err
	}
	return registry.Register(queue.QueueImageUpload, cfg.Queue.ImageUploadConcurrency, imageHandler.Handle)
}

// openDatabase opens and verifies the PostgreSQL connection pool.
func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// newObjectStorage selects the configured storage backend.
func newObjectStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Backend {
	case "gcs":
		return storage.NewGCSStore(ctx, cfg.Bucket)
	case "filesystem":
		return storage.NewFileStore(cfg.BasePath, cfg.PublicURLBase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
