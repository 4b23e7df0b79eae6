package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calliope-press/pipeline/internal/cache"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/queue"
	"github.com/calliope-press/pipeline/internal/storage"
	"github.com/calliope-press/pipeline/internal/store"
)

// ImageUploadHandler uploads standalone image sources for an existing
// article, appends the resulting URLs to the article, and invalidates its
// caches. Like the generation worker's asset stage, it tolerates secondary
// failures but aborts when the primary image cannot be uploaded.
type ImageUploadHandler struct {
	db       *sql.DB
	articles store.ArticleStore
	uploader *storage.Uploader
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewImageUploadHandler creates an ImageUploadHandler.
// Returns an error if any required dependency is nil.
func NewImageUploadHandler(
	db *sql.DB,
	articles store.ArticleStore,
	uploader *storage.Uploader,
	c *cache.Cache,
	log *slog.Logger,
) (*ImageUploadHandler, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if articles == nil {
		return nil, errors.New("article store cannot be nil")
	}
	if uploader == nil {
		return nil, errors.New("uploader cannot be nil")
	}
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &ImageUploadHandler{
		db:       db,
		articles: articles,
		uploader: uploader,
		cache:    c,
		logger:   log.With(slog.String("component", "image_upload_handler")),
	}, nil
}

// Handle implements queue.Handler for the image_upload queue.
func (h *ImageUploadHandler) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeImageUpload(job)
	if err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("article_id", payload.ArticleID.String()),
	)
	ctx = logger.WithLogger(ctx, log)

	// Confirm the article exists before spending time on uploads.
	article, err := h.articles.GetByID(ctx, payload.ArticleID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: article %s not found", queue.ErrInvalidPayload, payload.ArticleID)
		}
		return fmt.Errorf("failed to load article: %w", err)
	}

	result := h.uploader.UploadAll(ctx, payload.ImageSources, payload.UploadPath)
	if err := result.PrimaryErr(); err != nil {
		return fmt.Errorf("primary image upload failed: %w", err)
	}
	for _, failed := range result.Failed() {
		log.Warn("secondary image upload failed",
			slog.String("source", failed.Source),
			slog.String("error", failed.Err.Error()))
	}

	urls := result.URLs()

	// Concurrent upload jobs for the same article must not drop each other's
	// URLs, so the merge re-reads the list inside a transaction.
	err = store.RunInTransaction(ctx, h.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := h.articles.WithTx(tx)

		current, err := txStore.GetByID(ctx, payload.ArticleID)
		if err != nil {
			return fmt.Errorf("failed to reload article: %w", err)
		}

		update := store.ArticleUpdate{
			ImageURLs: append(append([]string{}, current.ImageURLs...), urls...),
		}
		if current.CoverImageURL == "" && len(urls) > 0 {
			update.CoverImageURL = &urls[0]
		}
		return txStore.UpdateFields(ctx, current.ID, update)
	})
	if err != nil {
		return fmt.Errorf("failed to persist image URLs: %w", err)
	}

	if err := h.cache.Del(ctx, articleIDKey(article.ID), articleSlugKey(article.Slug)); err != nil {
		log.Warn("failed to invalidate article cache keys",
			slog.String("error", err.Error()))
	}
	if _, err := h.cache.DelPattern(ctx, articleQueryPattern); err != nil {
		log.Warn("failed to invalidate article query caches",
			slog.String("error", err.Error()))
	}

	log.Info("image upload job completed",
		slog.String("job_id", job.ID.String()),
		slog.Int("uploaded", len(urls)))
	return nil
}
