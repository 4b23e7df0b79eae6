package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/calliope-press/pipeline/internal/config"
	"github.com/calliope-press/pipeline/internal/generation"
	"google.golang.org/genai"
)

// defaultCallTimeout bounds a single Gemini API call when the configuration
// does not specify one. Generation is the slowest external call in the
// pipeline; an unbounded call would pin a worker slot indefinitely.
const defaultCallTimeout = 2 * time.Minute

// promptData is the data passed to the prompt template.
type promptData struct {
	Topic        string
	Keywords     string
	TemplateName string
}

// responseSchema is the JSON document the model is instructed to return.
type responseSchema struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Summary         string   `json:"summary"`
	MediaSourceRefs []string `json:"media_source_refs"`
}

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to generate article content.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// callTimeout bounds each API call
	callTimeout time.Duration
}

// Ensure GeminiGenerator implements the Generator interface
var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new instance of GeminiGenerator with the provided dependencies.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing API key, model name, and prompt template path
//
// Returns:
//   - A properly initialized GeminiGenerator or an error if initialization fails
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.PromptTemplatePath == "" {
		return nil, fmt.Errorf("%w: prompt template path cannot be empty", generation.ErrInvalidConfig)
	}

	templateContent, err := os.ReadFile(cfg.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
			generation.ErrInvalidConfig, cfg.PromptTemplatePath, err)
	}

	promptTemplate, err := template.New("article").Parse(string(templateContent))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			generation.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &GeminiGenerator{
		logger:         logger.With(slog.String("component", "gemini_generator")),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
		callTimeout:    callTimeout,
	}, nil
}

// Generate implements generation.Generator. It renders the prompt, makes a
// single bounded API call, and maps the JSON response to a generation.Result.
// Retries across calls are the broker's responsibility; retrying here as well
// would multiply the attempt bound.
func (g *GeminiGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	prompt, err := g.createPrompt(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	g.logger.InfoContext(ctx, "making Gemini API call",
		"model", g.model,
		"prompt_length", len(prompt))

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		// Network, rate-limit, and server errors all surface here; classify
		// them as transient so the broker's retry policy applies.
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	return g.parseResponse(ctx, resp)
}

// createPrompt renders the prompt template with the request data.
func (g *GeminiGenerator) createPrompt(req generation.Request) (string, error) {
	if req.Topic == "" && req.TemplateName == "" {
		return "", generation.ErrEmptyRequest
	}

	data := promptData{
		Topic:        req.Topic,
		Keywords:     strings.Join(req.Keywords, ", "),
		TemplateName: req.TemplateName,
	}

	var promptBuffer bytes.Buffer
	if err := g.promptTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return promptBuffer.String(), nil
}

// parseResponse validates the model response and maps it to a Result.
func (g *GeminiGenerator) parseResponse(ctx context.Context, resp *genai.GenerateContentResponse) (*generation.Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}

	if parsed.Title == "" || parsed.Body == "" {
		return nil, fmt.Errorf("%w: response is missing title or body", generation.ErrInvalidResponse)
	}

	g.logger.InfoContext(ctx, "Gemini API call successful",
		"title_length", len(parsed.Title),
		"body_length", len(parsed.Body),
		"media_refs", len(parsed.MediaSourceRefs))

	return &generation.Result{
		Title:           parsed.Title,
		Body:            parsed.Body,
		Summary:         parsed.Summary,
		MediaSourceRefs: parsed.MediaSourceRefs,
	}, nil
}
