package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calliope-press/pipeline/internal/cache"
	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/queue"
	"github.com/calliope-press/pipeline/internal/speech"
	"github.com/calliope-press/pipeline/internal/storage"
	"github.com/calliope-press/pipeline/internal/store"
)

// NarrationHandler turns an article's generated text into a single audio
// asset: sanitize, chunk to the provider byte limit, synthesize each chunk in
// order, concatenate, upload, and record the audio URL. A failure at any step
// marks NarrationStatusFailed and never touches the generation result.
type NarrationHandler struct {
	articles    store.ArticleStore
	synthesizer speech.Synthesizer
	objects     storage.ObjectStorage
	cache       *cache.Cache
	chunkLimit  int
	logger      *slog.Logger
}

// NewNarrationHandler creates a NarrationHandler with its collaborators.
// A non-positive chunkLimit falls back to DefaultChunkByteLimit.
// Returns an error if any required dependency is nil.
func NewNarrationHandler(
	articles store.ArticleStore,
	synthesizer speech.Synthesizer,
	objects storage.ObjectStorage,
	c *cache.Cache,
	chunkLimit int,
	log *slog.Logger,
) (*NarrationHandler, error) {
	if articles == nil {
		return nil, errors.New("article store cannot be nil")
	}
	if synthesizer == nil {
		return nil, errors.New("synthesizer cannot be nil")
	}
	if objects == nil {
		return nil, errors.New("object storage cannot be nil")
	}
	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkByteLimit
	}

	return &NarrationHandler{
		articles:    articles,
		synthesizer: synthesizer,
		objects:     objects,
		cache:       c,
		chunkLimit:  chunkLimit,
		logger:      log.With(slog.String("component", "narration_handler")),
	}, nil
}

// Handle implements queue.Handler for the narration queue.
func (h *NarrationHandler) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeNarration(job)
	if err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("article_id", payload.ArticleID.String()),
	)
	ctx = logger.WithLogger(ctx, log)

	article, err := h.articles.GetByID(ctx, payload.ArticleID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return fmt.Errorf("%w: article %s not found", queue.ErrInvalidPayload, payload.ArticleID)
		}
		return fmt.Errorf("failed to load article: %w", err)
	}
	if article.GenerationStatus != domain.GenerationStatusCompleted {
		return fmt.Errorf("%w: article %s generation is %q, not completed",
			queue.ErrInvalidPayload, article.ID, article.GenerationStatus)
	}

	processing := domain.NarrationStatusProcessing
	if err := h.articles.UpdateFields(ctx, article.ID, store.ArticleUpdate{
		NarrationStatus: &processing,
	}); err != nil {
		return fmt.Errorf("failed to mark narration processing: %w", err)
	}

	text := Sanitize(payload.Text)
	if text == "" {
		return h.fail(ctx, article,
			fmt.Errorf("%w: %w after sanitization", queue.ErrInvalidPayload, domain.ErrEmptyContent))
	}

	chunks := SplitText(text, h.chunkLimit)
	log.Info("narration text prepared",
		slog.Int("sanitized_bytes", len(text)),
		slog.Int("chunks", len(chunks)))

	// Chunks are synthesized strictly in order so the raw buffers can be
	// joined without a re-ordering step. Direct byte concatenation is valid
	// for MP3 and raw PCM; container formats with stream-level metadata
	// would need a real muxer here.
	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := h.synthesizer.Synthesize(ctx, chunk, payload.Voice)
		if err != nil {
			return h.fail(ctx, article,
				fmt.Errorf("synthesis failed on chunk %d of %d: %w", i+1, len(chunks), err))
		}
		audio.Write(data)
	}

	key := "narrations/" + article.ID.String() + ".mp3"
	url, err := h.objects.Write(ctx, key, audio.Bytes(), "audio/mpeg")
	if err != nil {
		return h.fail(ctx, article, fmt.Errorf("audio upload failed: %w", err))
	}

	completed := domain.NarrationStatusCompleted
	if err := h.articles.UpdateFields(ctx, article.ID, store.ArticleUpdate{
		NarrationStatus: &completed,
		AudioURL:        &url,
	}); err != nil {
		return h.fail(ctx, article, fmt.Errorf("failed to persist audio URL: %w", err))
	}

	h.invalidate(ctx, article)

	log.Info("narration job completed",
		slog.String("job_id", job.ID.String()),
		slog.Int("audio_bytes", audio.Len()),
		slog.String("audio_url", url))
	return nil
}

// fail records NarrationStatusFailed and returns the causing error so the
// broker's retry policy applies. The generation result is left untouched.
func (h *NarrationHandler) fail(ctx context.Context, article *domain.Article, cause error) error {
	log := logger.FromContextOrDefault(ctx, h.logger)
	log.Error("narration failed",
		slog.String("error", cause.Error()))

	failed := domain.NarrationStatusFailed
	if err := h.articles.UpdateFields(ctx, article.ID, store.ArticleUpdate{
		NarrationStatus: &failed,
	}); err != nil {
		log.Error("failed to mark narration failed",
			slog.String("error", err.Error()))
	}
	return cause
}

func (h *NarrationHandler) invalidate(ctx context.Context, article *domain.Article) {
	log := logger.FromContextOrDefault(ctx, h.logger)

	if err := h.cache.Del(ctx, articleIDKey(article.ID), articleSlugKey(article.Slug)); err != nil {
		log.Warn("failed to invalidate article cache keys",
			slog.String("error", err.Error()))
	}
	if _, err := h.cache.DelPattern(ctx, articleQueryPattern); err != nil {
		log.Warn("failed to invalidate article query caches",
			slog.String("error", err.Error()))
	}
}
