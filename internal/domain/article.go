package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus represents the content-generation state of an article.
type GenerationStatus string

// Possible generation status values
const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// NarrationStatus represents the speech-synthesis state of an article.
// It is independent from GenerationStatus and only becomes meaningful
// once generation has completed.
type NarrationStatus string

// Possible narration status values. NarrationStatusNone is the zero state
// for articles whose narration has never been requested or started.
const (
	NarrationStatusNone       NarrationStatus = ""
	NarrationStatusProcessing NarrationStatus = "processing"
	NarrationStatusCompleted  NarrationStatus = "completed"
	NarrationStatusFailed     NarrationStatus = "failed"
)

// Common validation errors for Article. All wrap ErrValidation.
var (
	ErrEmptyArticleID          = fmt.Errorf("%w: article ID cannot be empty", ErrValidation)
	ErrEmptyArticleAuthorID    = fmt.Errorf("%w: article author ID cannot be empty", ErrValidation)
	ErrEmptyArticleSlug        = fmt.Errorf("%w: article slug cannot be empty", ErrValidation)
	ErrInvalidGenerationStatus = fmt.Errorf("%w: invalid generation status", ErrValidation)
	ErrInvalidNarrationStatus  = fmt.Errorf("%w: invalid narration status", ErrValidation)
	ErrNarrationBeforeContent  = fmt.Errorf("%w: narration status requires completed generation", ErrValidation)
)

// Article represents a single piece of published content. It is created as a
// placeholder by the API layer before a generation job is enqueued, then
// filled in by the generation worker and, later, annotated with an audio
// reference by the narration worker.
type Article struct {
	ID               uuid.UUID        `json:"id"`
	AuthorID         uuid.UUID        `json:"author_id"`
	Slug             string           `json:"slug"`
	Title            string           `json:"title"`
	Body             string           `json:"body"`
	Summary          string           `json:"summary,omitempty"`
	CoverImageURL    string           `json:"cover_image_url,omitempty"`
	ImageURLs        []string         `json:"image_urls,omitempty"`
	AudioURL         string           `json:"audio_url,omitempty"`
	GenerationStatus GenerationStatus `json:"generation_status"`
	NarrationStatus  NarrationStatus  `json:"narration_status,omitempty"`
	GenerationError  string           `json:"generation_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewArticle creates a placeholder Article for the given author and slug.
// It generates a new UUID, sets GenerationStatus to pending, leaves
// NarrationStatus unset, and stamps creation/update times.
// Returns an error if validation fails.
func NewArticle(authorID uuid.UUID, slug string) (*Article, error) {
	now := time.Now().UTC()
	article := &Article{
		ID:               uuid.New(),
		AuthorID:         authorID,
		Slug:             slug,
		GenerationStatus: GenerationStatusPending,
		NarrationStatus:  NarrationStatusNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := article.Validate(); err != nil {
		return nil, err
	}

	return article, nil
}

// Validate checks if the Article has valid data.
// Returns an error if any field fails validation, including a violation of
// the cross-field invariant that narration may only progress once
// generation has completed.
func (a *Article) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyArticleID
	}

	if a.AuthorID == uuid.Nil {
		return ErrEmptyArticleAuthorID
	}

	if a.Slug == "" {
		return ErrEmptyArticleSlug
	}

	if !isValidGenerationStatus(a.GenerationStatus) {
		return ErrInvalidGenerationStatus
	}

	if !isValidNarrationStatus(a.NarrationStatus) {
		return ErrInvalidNarrationStatus
	}

	if a.NarrationStatus != NarrationStatusNone && a.GenerationStatus != GenerationStatusCompleted {
		return ErrNarrationBeforeContent
	}

	return nil
}

// isValidGenerationStatus checks if the provided status is a valid GenerationStatus.
func isValidGenerationStatus(status GenerationStatus) bool {
	switch status {
	case GenerationStatusPending,
		GenerationStatusProcessing,
		GenerationStatusCompleted,
		GenerationStatusFailed:
		return true
	default:
		return false
	}
}

// isValidNarrationStatus checks if the provided status is a valid NarrationStatus.
func isValidNarrationStatus(status NarrationStatus) bool {
	switch status {
	case NarrationStatusNone,
		NarrationStatusProcessing,
		NarrationStatusCompleted,
		NarrationStatusFailed:
		return true
	default:
		return false
	}
}
