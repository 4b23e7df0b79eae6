package store

import (
	"context"
	"database/sql"

	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/google/uuid"
)

// ArticleUpdate names the fields an update may set. Nil pointers (and a nil
// ImageURLs slice) leave the corresponding column unchanged.
type ArticleUpdate struct {
	Title            *string
	Body             *string
	Summary          *string
	CoverImageURL    *string
	ImageURLs        []string
	AudioURL         *string
	GenerationStatus *domain.GenerationStatus
	NarrationStatus  *domain.NarrationStatus
	GenerationError  *string
}

// ArticleStore defines the interface for article data persistence.
type ArticleStore interface {
	// Create saves a new article to the store.
	// It handles domain validation internally.
	// Returns validation errors from the domain Article if data is invalid.
	// Returns ErrDuplicate if the slug is already taken.
	Create(ctx context.Context, article *domain.Article) error

	// GetByID retrieves an article by its unique ID.
	// Returns ErrArticleNotFound if the article does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error)

	// UpdateFields applies a partial update to an existing article.
	// Returns ErrArticleNotFound if the article does not exist.
	UpdateFields(ctx context.Context, id uuid.UUID, update ArticleUpdate) error

	// Delete removes an article from the store.
	// Deleting an article that does not exist returns ErrArticleNotFound.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new ArticleStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) ArticleStore
}
