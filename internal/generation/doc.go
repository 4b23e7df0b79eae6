// Package generation provides the boundary to external AI/LLM services for
// article content generation. It abstracts the details of LLM API
// integration (Gemini), allowing the pipeline to generate article content
// without coupling to a specific provider.
package generation
