package pipeline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calliope-press/pipeline/internal/pipeline"
)

// stripSpace removes all whitespace so chunk coverage can be compared modulo
// whitespace normalization.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := pipeline.SplitText("A short sentence.", 4500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short sentence.", chunks[0])
}

func TestSplitTextEmptyInput(t *testing.T) {
	t.Parallel()

	assert.Nil(t, pipeline.SplitText("", 4500))
	assert.Nil(t, pipeline.SplitText("   \n  ", 4500))
}

func TestSplitTextLongInput(t *testing.T) {
	t.Parallel()

	// ~10,000 bytes of ordinary sentences.
	sentence := "The quick brown fox jumps over the lazy dog near the river bank. "
	text := strings.TrimSpace(strings.Repeat(sentence, 160))
	require.Greater(t, len(text), 10000)

	chunks := pipeline.SplitText(text, 4500)

	assert.GreaterOrEqual(t, len(chunks), 2, "10k bytes must split into at least two chunks")
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 4500, "chunk %d exceeds byte limit", i)
		assert.NotEmpty(t, chunk)
	}

	// Coverage: concatenating the chunks reproduces the input modulo whitespace.
	assert.Equal(t, stripSpace(text), stripSpace(strings.Join(chunks, " ")))
}

func TestSplitTextOversizeSentenceFallsBackToWords(t *testing.T) {
	t.Parallel()

	// One sentence far over the limit, made of ordinary words.
	word := "telescope "
	sentence := strings.TrimSpace(strings.Repeat(word, 60)) + "."
	limit := 100

	chunks := pipeline.SplitText(sentence, limit)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), limit, "chunk %d exceeds byte limit", i)
	}
	assert.Equal(t, stripSpace(sentence), stripSpace(strings.Join(chunks, " ")))
}

func TestSplitTextPathologicalWordTruncated(t *testing.T) {
	t.Parallel()

	limit := 50
	long := strings.Repeat("x", 300)
	text := "Short lead. " + long + " trailing words here."

	chunks := pipeline.SplitText(text, limit)

	var truncated string
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), limit)
		if strings.HasSuffix(chunk, "…") {
			truncated = chunk
		}
	}
	require.NotEmpty(t, truncated, "expected a hard-truncated chunk with an ellipsis marker")
	assert.True(t, strings.HasPrefix(truncated, "xxx"))
}

func TestSplitTextMultibyteSafeTruncation(t *testing.T) {
	t.Parallel()

	limit := 20
	// A single over-limit word of 3-byte runes; truncation must not split a rune.
	word := strings.Repeat("語", 30)

	chunks := pipeline.SplitText(word, limit)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), limit)
		assert.True(t, strings.HasSuffix(chunk, "…"))
		for _, r := range chunk {
			assert.NotEqual(t, '�', r, "truncation split a rune")
		}
	}
}

func TestSplitTextOrderPreserved(t *testing.T) {
	t.Parallel()

	var sentences []string
	for _, part := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"} {
		sentences = append(sentences, "Sentence "+part+" has filler to occupy space in the buffer.")
	}
	text := strings.Join(sentences, " ")

	chunks := pipeline.SplitText(text, 120)
	joined := strings.Join(chunks, " ")

	last := -1
	for _, part := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"} {
		idx := strings.Index(joined, part)
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, last, "chunk order does not follow input order")
		last = idx
	}
}
