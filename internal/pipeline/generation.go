package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calliope-press/pipeline/internal/cache"
	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/calliope-press/pipeline/internal/generation"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/queue"
	"github.com/calliope-press/pipeline/internal/storage"
	"github.com/calliope-press/pipeline/internal/store"
)

// JobEnqueuer is the narrow slice of the queue manager the generation worker
// needs to chain a narration job after its final write.
type JobEnqueuer interface {
	AddJob(ctx context.Context, name queue.Name, payload queue.Payload) (*queue.Job, error)
}

// GenerationHandler drives one generation job through its stages: generate
// content, upload media assets, persist the result, invalidate caches, and
// chain a narration job. On failure at any stage it compensates by deleting
// the placeholder article so readers never see a half-generated record.
type GenerationHandler struct {
	articles  store.ArticleStore
	generator generation.Generator
	uploader  *storage.Uploader
	cache     *cache.Cache
	jobs      JobEnqueuer
	logger    *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler with its collaborators.
// Returns an error if any required dependency is nil.
func NewGenerationHandler(
	articles store.ArticleStore,
	generator generation.Generator,
	uploader *storage.Uploader,
	c *cache.Cache,
	jobs JobEnqueuer,
	log *slog.Logger,
) (*GenerationHandler, error) {
	if articles == nil {
		return nil, errors.New("article store cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if uploader == nil {
		return nil, errors.New("uploader cannot be nil")
	}
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if jobs == nil {
		return nil, errors.New("job enqueuer cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &GenerationHandler{
		articles:  articles,
		generator: generator,
		uploader:  uploader,
		cache:     c,
		jobs:      jobs,
		logger:    log.With(slog.String("component", "generation_handler")),
	}, nil
}

// Handle implements queue.Handler for the generation queue.
func (h *GenerationHandler) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeGeneration(job)
	if err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("article_id", payload.ArticleID.String()),
	)
	ctx = logger.WithLogger(ctx, log)

	article, err := h.loadOrRecreate(ctx, payload)
	if err != nil {
		return err
	}

	processing := domain.GenerationStatusProcessing
	if err := h.articles.UpdateFields(ctx, article.ID, store.ArticleUpdate{
		GenerationStatus: &processing,
	}); err != nil {
		return fmt.Errorf("failed to mark article processing: %w", err)
	}

	result, err := h.generator.Generate(ctx, generation.Request{
		Topic:        payload.Params.Topic,
		Keywords:     payload.Params.Keywords,
		TemplateName: payload.Params.TemplateName,
	})
	if err != nil {
		return h.compensate(ctx, article, fmt.Errorf("content generation failed: %w", err))
	}

	log.Info("content generated",
		slog.String("title", result.Title),
		slog.Int("body_bytes", len(result.Body)),
		slog.Int("media_refs", len(result.MediaSourceRefs)))

	coverURL, imageURLs, err := h.uploadAssets(ctx, article.ID, result.MediaSourceRefs)
	if err != nil {
		return h.compensate(ctx, article, err)
	}

	completed := domain.GenerationStatusCompleted
	update := store.ArticleUpdate{
		Title:            &result.Title,
		Body:             &result.Body,
		Summary:          &result.Summary,
		GenerationStatus: &completed,
	}
	if coverURL != "" {
		update.CoverImageURL = &coverURL
	}
	if imageURLs != nil {
		update.ImageURLs = imageURLs
	}
	if err := h.articles.UpdateFields(ctx, article.ID, update); err != nil {
		return h.compensate(ctx, article, fmt.Errorf("failed to persist generated content: %w", err))
	}

	h.invalidate(ctx, article.ID, article.Slug)

	// The article is complete at this point. A narration enqueue failure is
	// logged but does not fail the job: retrying would regenerate content
	// that already published successfully.
	_, err = h.jobs.AddJob(ctx, queue.QueueNarration, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      result.Body,
		Voice:     payload.Params.Voice,
	})
	if err != nil {
		log.Error("failed to enqueue narration job",
			slog.String("error", err.Error()))
	}

	log.Info("generation job completed", slog.String("job_id", job.ID.String()))
	return nil
}

// loadOrRecreate fetches the placeholder article, or rebuilds it when a prior
// attempt's compensating delete removed it. Recreation keeps retries able to
// regenerate from scratch; the slug is derived deterministically so repeated
// attempts converge on the same record.
func (h *GenerationHandler) loadOrRecreate(
	ctx context.Context,
	payload *queue.GenerationPayload,
) (*domain.Article, error) {
	article, err := h.articles.GetByID(ctx, payload.ArticleID)
	if err == nil {
		return article, nil
	}
	if !store.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}

	log := logger.FromContextOrDefault(ctx, h.logger)
	log.Info("placeholder article missing, recreating for retry")

	now := time.Now().UTC()
	article = &domain.Article{
		ID:               payload.ArticleID,
		AuthorID:         payload.AuthorID,
		Slug:             slugify(payload.Params.Topic, payload.ArticleID),
		GenerationStatus: domain.GenerationStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.articles.Create(ctx, article); err != nil {
		return nil, fmt.Errorf("failed to recreate placeholder article: %w", err)
	}
	return article, nil
}

// uploadAssets uploads the generated media references. Individual failures
// are tolerated with a warning, except for the primary (first) asset, whose
// failure aborts the job.
func (h *GenerationHandler) uploadAssets(
	ctx context.Context,
	articleID uuid.UUID,
	sources []string,
) (coverURL string, imageURLs []string, err error) {
	if len(sources) == 0 {
		return "", nil, nil
	}

	log := logger.FromContextOrDefault(ctx, h.logger)

	result := h.uploader.UploadAll(ctx, sources, "articles/"+articleID.String())
	if err := result.PrimaryErr(); err != nil {
		return "", nil, fmt.Errorf("primary asset upload failed: %w", err)
	}
	for _, failed := range result.Failed() {
		log.Warn("secondary asset upload failed",
			slog.String("source", failed.Source),
			slog.String("error", failed.Err.Error()))
	}

	urls := result.URLs()
	return urls[0], urls, nil
}

// compensate handles a generation failure by deleting the placeholder record.
// If the delete itself fails, it falls back to marking the article failed so
// the record is never silently stranded in processing. The causing error is
// returned so the broker's retry policy applies to the generation attempt.
func (h *GenerationHandler) compensate(
	ctx context.Context,
	article *domain.Article,
	cause error,
) error {
	log := logger.FromContextOrDefault(ctx, h.logger)
	log.Error("generation failed, compensating",
		slog.String("error", cause.Error()))

	if err := h.articles.Delete(ctx, article.ID); err != nil && !store.IsNotFoundError(err) {
		log.Error("compensating delete failed, marking article failed",
			slog.String("error", err.Error()))

		failed := domain.GenerationStatusFailed
		msg := cause.Error()
		if updErr := h.articles.UpdateFields(ctx, article.ID, store.ArticleUpdate{
			GenerationStatus: &failed,
			GenerationError:  &msg,
		}); updErr != nil {
			log.Error("failed-status fallback also failed",
				slog.String("error", updErr.Error()))
		}
	}

	h.invalidate(ctx, article.ID, article.Slug)
	return cause
}

// invalidate drops the article's exact cache keys and every query/listing
// cache that could include it. Invalidation failures are logged, not
// propagated; a stale cache entry expires on its own TTL.
func (h *GenerationHandler) invalidate(ctx context.Context, id uuid.UUID, slug string) {
	log := logger.FromContextOrDefault(ctx, h.logger)

	if err := h.cache.Del(ctx, articleIDKey(id), articleSlugKey(slug)); err != nil {
		log.Warn("failed to invalidate article cache keys",
			slog.String("error", err.Error()))
	}
	if _, err := h.cache.DelPattern(ctx, articleQueryPattern); err != nil {
		log.Warn("failed to invalidate article query caches",
			slog.String("error", err.Error()))
	}
}
