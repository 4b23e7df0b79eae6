package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkByteLimit is the conservative per-request byte ceiling for the
// speech provider. The provider's hard limit is 5000 bytes; staying under it
// leaves headroom for SSML-style expansion on the provider side.
const DefaultChunkByteLimit = 4500

// ellipsis marks a hard-truncated pathological word so the cut is visible in
// the narrated text rather than silently clipped.
const ellipsis = "…"

// sentenceRe matches a run of text up to and including its terminal
// punctuation, or a trailing run with no terminator.
var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// SplitText splits sanitized text into chunks whose UTF-8 byte length never
// exceeds limit. It packs whole sentences greedily, falls back to word-level
// packing for a sentence that alone exceeds the limit, and hard-truncates a
// single over-limit word with an ellipsis marker. The three-tier fallback
// guarantees termination and a non-empty chunk set for any non-empty input.
// Chunk order follows input order.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkByteLimit
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	// append adds a fragment known to fit within limit, starting a new chunk
	// when the current one has no room left.
	appendFragment := func(fragment string) {
		needed := len(fragment)
		if current.Len() > 0 {
			needed += 1 // joining space
		}
		if current.Len()+needed > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(fragment)
	}

	for _, sentence := range sentenceRe.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(sentence) <= limit {
			appendFragment(sentence)
			continue
		}

		// Sentence alone exceeds the limit: pack its words instead.
		for _, word := range strings.Fields(sentence) {
			if len(word) <= limit {
				appendFragment(word)
				continue
			}

			// Pathological over-limit word: truncate rather than failing
			// the whole narration.
			flush()
			chunks = append(chunks, truncateWord(word, limit))
		}
	}
	flush()

	return chunks
}

// truncateWord cuts a word at a rune boundary so that the result, with the
// ellipsis marker appended, stays within limit bytes.
func truncateWord(word string, limit int) string {
	cut := limit - len(ellipsis)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(word) {
		return word
	}
	for cut > 0 && !utf8.RuneStart(word[cut]) {
		cut--
	}
	return word[:cut] + ellipsis
}
