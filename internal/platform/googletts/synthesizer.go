// Package googletts implements the speech.Synthesizer interface using
// Google Cloud Text-to-Speech. Output is MP3, a frame-based encoding whose
// per-chunk buffers can be joined by direct concatenation.
package googletts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/calliope-press/pipeline/internal/config"
	"github.com/calliope-press/pipeline/internal/speech"
)

// defaultCallTimeout bounds a single synthesis call when the configuration
// does not specify one.
const defaultCallTimeout = 60 * time.Second

// Synthesizer calls the Google Cloud Text-to-Speech API, one request per
// text chunk.
type Synthesizer struct {
	logger      *slog.Logger
	client      *texttospeech.Client
	defaults    speech.Voice
	callTimeout time.Duration
}

// Ensure Synthesizer implements the speech.Synthesizer interface
var _ speech.Synthesizer = (*Synthesizer)(nil)

// New creates a Synthesizer using application default credentials. The
// configured language, voice, rate, and pitch act as defaults for requests
// whose voice leaves them unset.
func New(ctx context.Context, logger *slog.Logger, cfg config.SpeechConfig) (*Synthesizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.LanguageCode == "" {
		return nil, fmt.Errorf("%w: language code cannot be empty", speech.ErrInvalidConfig)
	}

	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create text-to-speech client: %v", speech.ErrInvalidConfig, err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Synthesizer{
		logger: logger.With(slog.String("component", "google_tts")),
		client: client,
		defaults: speech.Voice{
			LanguageCode: cfg.LanguageCode,
			Name:         cfg.VoiceName,
			SpeakingRate: cfg.SpeakingRate,
			Pitch:        cfg.Pitch,
		},
		callTimeout: callTimeout,
	}, nil
}

// Close releases the underlying gRPC connection.
func (s *Synthesizer) Close() error {
	return s.client.Close()
}

// Synthesize implements speech.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice speech.Voice) ([]byte, error) {
	if text == "" {
		return nil, speech.ErrEmptyText
	}

	merged := s.mergeVoice(voice)

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	resp, err := s.client.SynthesizeSpeech(callCtx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: merged.LanguageCode,
			Name:         merged.Name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  merged.SpeakingRate,
			Pitch:         merged.Pitch,
		},
	})
	if err != nil {
		// Network and quota errors surface here; the broker's retry policy
		// decides whether the narration job runs again.
		return nil, fmt.Errorf("%w: %v", speech.ErrTransientFailure, err)
	}

	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty audio", speech.ErrSynthesisFailed)
	}

	s.logger.DebugContext(ctx, "synthesized chunk",
		"text_bytes", len(text),
		"audio_bytes", len(resp.AudioContent))

	return resp.AudioContent, nil
}

// mergeVoice fills unset request fields from the configured defaults.
func (s *Synthesizer) mergeVoice(voice speech.Voice) speech.Voice {
	merged := s.defaults
	if voice.LanguageCode != "" {
		merged.LanguageCode = voice.LanguageCode
	}
	if voice.Name != "" {
		merged.Name = voice.Name
	}
	if voice.SpeakingRate != 0 {
		merged.SpeakingRate = voice.SpeakingRate
	}
	if voice.Pitch != 0 {
		merged.Pitch = voice.Pitch
	}
	return merged
}
