package generation

import (
	"context"
)

// Request carries everything a provider needs to generate one article.
type Request struct {
	// Topic is the subject to write about. Required unless TemplateName is set.
	Topic string

	// Keywords optionally steer the generated content.
	Keywords []string

	// TemplateName selects a prompt template for template-based generation.
	TemplateName string
}

// Result is the provider's output for one generation request. MediaSourceRefs
// are provider-supplied references (URLs or inline data URIs) to media that
// should be uploaded to object storage; the first entry is the primary asset.
type Result struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Summary         string   `json:"summary,omitempty"`
	MediaSourceRefs []string `json:"media_source_refs,omitempty"`
}

// Generator defines the interface for generating article content from a
// request. This interface is the boundary between the pipeline core and
// external AI/LLM services.
type Generator interface {
	// Generate creates article content for the given request.
	// It returns a Result or an error (see errors.go for the taxonomy).
	Generate(ctx context.Context, req Request) (*Result, error)
}
