// Package gemini implements the generation.Generator interface using
// Google's Gemini API. Prompts are rendered from a configurable template and
// responses are expected as JSON matching the article schema.
package gemini
