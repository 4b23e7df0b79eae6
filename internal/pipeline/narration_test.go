package pipeline_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calliope-press/pipeline/internal/domain"
	"github.com/calliope-press/pipeline/internal/pipeline"
	"github.com/calliope-press/pipeline/internal/queue"
)

func narrationJob(t *testing.T, payload *queue.NarrationPayload) *queue.Job {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{
		ID:          uuid.New(),
		Queue:       queue.QueueNarration,
		Payload:     data,
		MaxAttempts: queue.DefaultMaxAttempts,
		Status:      queue.StatusActive,
	}
}

type narrationFixture struct {
	handler  *pipeline.NarrationHandler
	articles *fakeArticleStore
	synth    *fakeSynthesizer
	objects  *memObjectStorage
}

func newNarrationFixture(t *testing.T, synth *fakeSynthesizer, chunkLimit int) *narrationFixture {
	t.Helper()

	articles := newFakeArticleStore()
	objects := newMemObjectStorage()
	c, _ := newTestCache(t)

	handler, err := pipeline.NewNarrationHandler(
		articles, synth, objects, c, chunkLimit, testLogger())
	require.NoError(t, err)

	return &narrationFixture{
		handler:  handler,
		articles: articles,
		synth:    synth,
		objects:  objects,
	}
}

func TestNarrationHandlerShortText(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("AUDIO")}
	fix := newNarrationFixture(t, synth, 4500)
	article := completedArticle(t, fix.articles)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "A short body that fits in one synthesis call.",
	})
	require.NoError(t, fix.handler.Handle(context.Background(), job))

	require.Len(t, synth.chunks, 1, "text under the byte limit must synthesize in one call")

	got := fix.articles.get(t, article.ID)
	assert.Equal(t, domain.NarrationStatusCompleted, got.NarrationStatus)
	assert.Equal(t, "https://cdn.test/narrations/"+article.ID.String()+".mp3", got.AudioURL)
	assert.Equal(t, []byte("AUDIO"), fix.objects.object("narrations/"+article.ID.String()+".mp3"))
}

func TestNarrationHandlerLongTextChunksAndConcatenates(t *testing.T) {
	t.Parallel()

	perChunk := []byte("0123456789") // 10 bytes of audio per chunk
	synth := &fakeSynthesizer{audioPerChunk: perChunk}
	fix := newNarrationFixture(t, synth, 4500)
	article := completedArticle(t, fix.articles)

	// ~10,000 bytes of sanitized prose with clear sentence terminators.
	sentence := "The narration worker reads every sentence aloud in a calm voice. "
	text := strings.TrimSpace(strings.Repeat(sentence, 160))
	require.Greater(t, len(text), 10000)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      text,
	})
	require.NoError(t, fix.handler.Handle(context.Background(), job))

	require.GreaterOrEqual(t, len(synth.chunks), 2, "10k bytes must synthesize as multiple chunks")
	for i, chunk := range synth.chunks {
		assert.LessOrEqual(t, len(chunk), 4500, "chunk %d exceeds byte limit", i)
	}

	// The concatenated buffer is the per-chunk buffers joined in chunk
	// order, so its length is exactly the sum of the parts.
	audio := fix.objects.object("narrations/" + article.ID.String() + ".mp3")
	assert.Equal(t, len(perChunk)*len(synth.chunks), len(audio))

	got := fix.articles.get(t, article.ID)
	assert.Equal(t, domain.NarrationStatusCompleted, got.NarrationStatus)
}

func TestNarrationHandlerSanitizesBeforeChunking(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("A")}
	fix := newNarrationFixture(t, synth, 4500)
	article := completedArticle(t, fix.articles)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "# Heading\n\nSome **bold** prose with [a link](https://x.test).",
	})
	require.NoError(t, fix.handler.Handle(context.Background(), job))

	require.Len(t, synth.chunks, 1)
	assert.Equal(t, "Heading\n\nSome bold prose with a link.", synth.chunks[0])
}

func TestNarrationHandlerSynthesisFailure(t *testing.T) {
	t.Parallel()

	// Scenario: generation completed, then narration fails mid-synthesis.
	// The generated content must remain intact; only NarrationStatus moves.
	synth := &fakeSynthesizer{audioPerChunk: []byte("A"), failOnCall: 1}
	fix := newNarrationFixture(t, synth, 4500)
	article := completedArticle(t, fix.articles)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "Body text that will fail to synthesize.",
	})

	err := fix.handler.Handle(context.Background(), job)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrInvalidPayload, "synthesis failures must stay retryable")

	got := fix.articles.get(t, article.ID)
	assert.Equal(t, domain.NarrationStatusFailed, got.NarrationStatus)
	assert.Equal(t, domain.GenerationStatusCompleted, got.GenerationStatus,
		"narration failure must not touch the generation result")
	assert.Equal(t, article.Title, got.Title)
	assert.Equal(t, article.Body, got.Body)
	assert.Empty(t, got.AudioURL)
}

func TestNarrationHandlerUploadFailure(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("A")}
	fix := newNarrationFixture(t, synth, 4500)
	fix.objects.writeErr = errBoom
	article := completedArticle(t, fix.articles)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "Body text whose audio cannot be stored.",
	})

	err := fix.handler.Handle(context.Background(), job)
	require.ErrorIs(t, err, errBoom)

	got := fix.articles.get(t, article.ID)
	assert.Equal(t, domain.NarrationStatusFailed, got.NarrationStatus)
	assert.Equal(t, domain.GenerationStatusCompleted, got.GenerationStatus)
}

func TestNarrationHandlerRequiresCompletedGeneration(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("A")}
	fix := newNarrationFixture(t, synth, 4500)

	article, err := domain.NewArticle(uuid.New(), "still-pending")
	require.NoError(t, err)
	require.NoError(t, fix.articles.Create(context.Background(), article))

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "Text for an article that has not finished generating.",
	})

	err = fix.handler.Handle(context.Background(), job)
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)
	assert.Empty(t, synth.chunks)
}

func TestNarrationHandlerMissingArticle(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("A")}
	fix := newNarrationFixture(t, synth, 4500)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: uuid.New(),
		Text:      "Text for a record that no longer exists.",
	})

	err := fix.handler.Handle(context.Background(), job)
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)
}

func TestNarrationHandlerMarkupOnlyText(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{audioPerChunk: []byte("A")}
	fix := newNarrationFixture(t, synth, 4500)
	article := completedArticle(t, fix.articles)

	job := narrationJob(t, &queue.NarrationPayload{
		ArticleID: article.ID,
		Text:      "```\nonly code, nothing narratable\n```",
	})

	err := fix.handler.Handle(context.Background(), job)
	require.ErrorIs(t, err, queue.ErrInvalidPayload)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	got := fix.articles.get(t, article.ID)
	assert.Equal(t, domain.NarrationStatusFailed, got.NarrationStatus)
	assert.Empty(t, synth.chunks)
}
