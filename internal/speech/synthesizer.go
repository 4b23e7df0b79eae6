package speech

import "context"

// Voice describes how synthesized narration should sound. The zero value
// defers every choice to the provider's defaults for the configured language.
type Voice struct {
	LanguageCode string  `json:"language_code,omitempty"`
	Name         string  `json:"name,omitempty"`
	SpeakingRate float64 `json:"speaking_rate,omitempty"`
	Pitch        float64 `json:"pitch,omitempty"`
}

// Synthesizer defines the interface for text-to-speech providers. One call
// produces the raw audio bytes for one chunk of text; callers are responsible
// for chunking input below the provider's request size ceiling and for
// concatenating the resulting buffers in chunk order.
type Synthesizer interface {
	// Synthesize converts a single chunk of plain text into audio bytes
	// using the given voice. Implementations must return audio in a
	// frame-based encoding (MP3 or raw PCM) so that buffers from
	// consecutive chunks can be joined by direct concatenation.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
