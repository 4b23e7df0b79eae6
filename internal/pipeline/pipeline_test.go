package pipeline_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/calliope-press/pipeline/internal/cache"
	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/calliope-press/pipeline/internal/generation"
	"github.com/calliope-press/pipeline/internal/queue"
	"github.com/calliope-press/pipeline/internal/speech"
	"github.com/calliope-press/pipeline/internal/store"
)

// fakeArticleStore is an in-memory ArticleStore for handler tests. Optional
// error fields force failures on specific operations.
type fakeArticleStore struct {
	mu       sync.Mutex
	articles map[uuid.UUID]*domain.Article

	deleteErr error
	updateErr error
}

func newFakeArticleStore() *fakeArticleStore {
	return &fakeArticleStore{articles: make(map[uuid.UUID]*domain.Article)}
}

func (s *fakeArticleStore) Create(_ context.Context, article *domain.Article) error {
	if err := article.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *article
	s.articles[article.ID] = &copied
	return nil
}

func (s *fakeArticleStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[id]
	if !ok {
		return nil, store.ErrArticleNotFound
	}
	copied := *article
	return &copied, nil
}

func (s *fakeArticleStore) UpdateFields(
	_ context.Context,
	id uuid.UUID,
	update store.ArticleUpdate,
) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[id]
	if !ok {
		return store.ErrArticleNotFound
	}
	if update.Title != nil {
		article.Title = *update.Title
	}
	if update.Body != nil {
		article.Body = *update.Body
	}
	if update.Summary != nil {
		article.Summary = *update.Summary
	}
	if update.CoverImageURL != nil {
		article.CoverImageURL = *update.CoverImageURL
	}
	if update.ImageURLs != nil {
		article.ImageURLs = update.ImageURLs
	}
	if update.AudioURL != nil {
		article.AudioURL = *update.AudioURL
	}
	if update.GenerationStatus != nil {
		article.GenerationStatus = *update.GenerationStatus
	}
	if update.NarrationStatus != nil {
		article.NarrationStatus = *update.NarrationStatus
	}
	if update.GenerationError != nil {
		article.GenerationError = *update.GenerationError
	}
	return nil
}

func (s *fakeArticleStore) Delete(_ context.Context, id uuid.UUID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		return store.ErrArticleNotFound
	}
	delete(s.articles, id)
	return nil
}

func (s *fakeArticleStore) WithTx(_ *sql.Tx) store.ArticleStore { return s }

// newTxDB returns a sqlmock database for handlers that run store writes
// inside a transaction. Only Begin/Commit/Rollback are exercised; the store
// calls themselves go through the in-memory fakes.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func (s *fakeArticleStore) get(t *testing.T, id uuid.UUID) *domain.Article {
	t.Helper()
	article, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return article
}

func (s *fakeArticleStore) exists(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.articles[id]
	return ok
}

// fakeGenerator returns a canned result or error.
type fakeGenerator struct {
	result *generation.Result
	err    error

	calls int
}

func (g *fakeGenerator) Generate(
	_ context.Context,
	_ generation.Request,
) (*generation.Result, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

// fakeSynthesizer returns a fixed-size buffer per chunk and records the
// chunks it was asked to synthesize, in call order.
type fakeSynthesizer struct {
	audioPerChunk []byte
	failOnCall    int // 1-based; 0 means never fail

	chunks []string
}

func (s *fakeSynthesizer) Synthesize(
	_ context.Context,
	text string,
	_ speech.Voice,
) ([]byte, error) {
	s.chunks = append(s.chunks, text)
	if s.failOnCall > 0 && len(s.chunks) == s.failOnCall {
		return nil, speech.ErrSynthesisFailed
	}
	return s.audioPerChunk, nil
}

// memObjectStorage keeps written objects in memory.
type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	writeErr error
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: make(map[string][]byte)}
}

func (m *memObjectStorage) Write(
	_ context.Context,
	key string,
	data []byte,
	_ string,
) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return "https://cdn.test/" + key, nil
}

func (m *memObjectStorage) object(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

// fakeEnqueuer records AddJob calls.
type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []queue.Payload
	err      error
}

func (e *fakeEnqueuer) AddJob(
	_ context.Context,
	name queue.Name,
	payload queue.Payload,
) (*queue.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.enqueued = append(e.enqueued, payload)
	return &queue.Job{ID: uuid.New(), Queue: name}, nil
}

func (e *fakeEnqueuer) narrations() []*queue.NarrationPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*queue.NarrationPayload
	for _, p := range e.enqueued {
		if n, ok := p.(*queue.NarrationPayload); ok {
			out = append(out, n)
		}
	}
	return out
}

// newTestCache creates a Cache backed by an in-process miniredis.
func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := cache.New(client, testLogger())
	require.NoError(t, err)
	return c, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// completedArticle seeds a generation-completed article into the store.
func completedArticle(t *testing.T, articles *fakeArticleStore) *domain.Article {
	t.Helper()

	article, err := domain.NewArticle(uuid.New(), "completed-"+uuid.NewString()[:8])
	require.NoError(t, err)
	article.Title = "A Title"
	article.Body = "Generated body text."
	article.GenerationStatus = domain.GenerationStatusCompleted
	require.NoError(t, articles.Create(context.Background(), article))
	return article
}

var errBoom = errors.New("boom")
