package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/store"
)

// PostgresArticleStore implements the store.ArticleStore interface
// using a PostgreSQL database as the storage backend.
type PostgresArticleStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresArticleStore creates a new PostgreSQL implementation of the
// ArticleStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresArticleStore(db store.DBTX, logger *slog.Logger) *PostgresArticleStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresArticleStore{
		db:     db,
		logger: logger.With(slog.String("component", "article_store")),
	}
}

// Ensure PostgresArticleStore implements store.ArticleStore interface
var _ store.ArticleStore = (*PostgresArticleStore)(nil)

// Create implements store.ArticleStore.Create
// It saves a new article to the database, handling domain validation.
// Returns validation errors from the domain Article if data is invalid.
// Returns store.ErrSlugExists if the slug is already taken.
func (s *PostgresArticleStore) Create(ctx context.Context, article *domain.Article) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := article.Validate(); err != nil {
		log.Warn("article validation failed during create",
			slog.String("error", err.Error()),
			slog.String("article_id", article.ID.String()))
		return err
	}

	imageURLs, err := marshalImageURLs(article.ImageURLs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO articles (id, author_id, slug, title, body, summary,
			cover_image_url, image_urls, audio_url,
			generation_status, narration_status, generation_error,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		article.ID,
		article.AuthorID,
		article.Slug,
		article.Title,
		article.Body,
		article.Summary,
		article.CoverImageURL,
		imageURLs,
		article.AudioURL,
		article.GenerationStatus,
		article.NarrationStatus,
		article.GenerationError,
		article.CreatedAt,
		article.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("duplicate slug during article creation",
				slog.String("article_id", article.ID.String()),
				slog.String("slug", article.Slug))
			return fmt.Errorf("%w: %s", store.ErrSlugExists, article.Slug)
		}

		log.Error("failed to create article",
			slog.String("error", err.Error()),
			slog.String("article_id", article.ID.String()))
		return MapError(err)
	}

	log.Info("article created successfully",
		slog.String("article_id", article.ID.String()),
		slog.String("author_id", article.AuthorID.String()),
		slog.String("slug", article.Slug))
	return nil
}

// GetByID implements store.ArticleStore.GetByID
// It retrieves an article by its unique ID.
// Returns store.ErrArticleNotFound if the article does not exist.
func (s *PostgresArticleStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Article, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("retrieving article by ID", slog.String("article_id", id.String()))

	query := `
		SELECT id, author_id, slug, title, body, summary,
			cover_image_url, image_urls, audio_url,
			generation_status, narration_status, generation_error,
			created_at, updated_at
		FROM articles
		WHERE id = $1
	`

	var article domain.Article
	var imageURLs []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID,
		&article.AuthorID,
		&article.Slug,
		&article.Title,
		&article.Body,
		&article.Summary,
		&article.CoverImageURL,
		&imageURLs,
		&article.AudioURL,
		&article.GenerationStatus,
		&article.NarrationStatus,
		&article.GenerationError,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("article not found", slog.String("article_id", id.String()))
			return nil, store.ErrArticleNotFound
		}

		log.Error("failed to retrieve article",
			slog.String("error", err.Error()),
			slog.String("article_id", id.String()))
		return nil, MapError(err)
	}

	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &article.ImageURLs); err != nil {
			return nil, fmt.Errorf("%w: image_urls column: %v", domain.ErrInvalidFormat, err)
		}
	}

	return &article, nil
}

// UpdateFields implements store.ArticleStore.UpdateFields
// It applies a partial update to an existing article, touching only the
// columns named by non-nil fields of the update.
// Returns store.ErrArticleNotFound if the article does not exist; execution
// failures wrap store.ErrUpdateFailed.
func (s *PostgresArticleStore) UpdateFields(
	ctx context.Context,
	id uuid.UUID,
	update store.ArticleUpdate,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	setClauses, args, err := buildArticleUpdate(update)
	if err != nil {
		return err
	}
	if len(setClauses) == 0 {
		log.Debug("no fields to update", slog.String("article_id", id.String()))
		return nil
	}

	// updated_at always moves with the update; the article ID is the final
	// positional argument.
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, time.Now().UTC(), id)

	query := "UPDATE articles SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(" WHERE id = $%d", len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update article",
			slog.String("error", err.Error()),
			slog.String("article_id", id.String()))
		return fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err))
	}

	if err := CheckRowsAffected(result, "article"); err != nil {
		log.Debug("article not found during update", slog.String("article_id", id.String()))
		return store.ErrArticleNotFound
	}

	log.Debug("article updated successfully",
		slog.String("article_id", id.String()),
		slog.Int("fields", len(setClauses)-1))
	return nil
}

// Delete implements store.ArticleStore.Delete
// It removes an article from the database.
// Returns store.ErrArticleNotFound if the article does not exist.
func (s *PostgresArticleStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM articles WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		log.Error("failed to delete article",
			slog.String("error", err.Error()),
			slog.String("article_id", id.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "article"); err != nil {
		log.Debug("article not found during delete", slog.String("article_id", id.String()))
		return store.ErrArticleNotFound
	}

	log.Info("article deleted successfully", slog.String("article_id", id.String()))
	return nil
}

// WithTx implements store.ArticleStore.WithTx
// It returns a new ArticleStore implementation that uses the provided transaction.
// This allows for multiple operations to be executed within a single transaction.
func (s *PostgresArticleStore) WithTx(tx *sql.Tx) store.ArticleStore {
	return &PostgresArticleStore{
		db:     tx,
		logger: s.logger,
	}
}

// buildArticleUpdate turns the non-nil fields of an ArticleUpdate into SQL
// SET clauses with positional placeholders and a matching argument slice.
func buildArticleUpdate(update store.ArticleUpdate) ([]string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Body != nil {
		add("body", *update.Body)
	}
	if update.Summary != nil {
		add("summary", *update.Summary)
	}
	if update.CoverImageURL != nil {
		add("cover_image_url", *update.CoverImageURL)
	}
	if update.ImageURLs != nil {
		imageURLs, err := marshalImageURLs(update.ImageURLs)
		if err != nil {
			return nil, nil, err
		}
		add("image_urls", imageURLs)
	}
	if update.AudioURL != nil {
		add("audio_url", *update.AudioURL)
	}
	if update.GenerationStatus != nil {
		add("generation_status", *update.GenerationStatus)
	}
	if update.NarrationStatus != nil {
		add("narration_status", *update.NarrationStatus)
	}
	if update.GenerationError != nil {
		add("generation_error", *update.GenerationError)
	}

	return clauses, args, nil
}

// marshalImageURLs serializes the image URL list for the jsonb column.
// An empty or nil slice is stored as an empty JSON array.
func marshalImageURLs(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image URLs: %w", err)
	}
	return data, nil
}
