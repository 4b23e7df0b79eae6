package pipeline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calliope-press/pipeline/internal/pipeline"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text passes through",
			input:    "Just a plain sentence.",
			expected: "Just a plain sentence.",
		},
		{
			name:     "html tags removed",
			input:    "Hello <strong>world</strong>, <br/>goodbye.",
			expected: "Hello world , goodbye.",
		},
		{
			name:     "markdown heading removed",
			input:    "## The Heading\nBody text.",
			expected: "The Heading\nBody text.",
		},
		{
			name:     "emphasis markers removed keeping text",
			input:    "This is *important* and __very bold__.",
			expected: "This is important and very bold.",
		},
		{
			name:     "link keeps its text",
			input:    "Read [the docs](https://example.com/docs) first.",
			expected: "Read the docs first.",
		},
		{
			name:     "image removed entirely",
			input:    "Before ![alt text](https://example.com/a.png) after.",
			expected: "Before after.",
		},
		{
			name:     "fenced code removed",
			input:    "Intro.\n```go\nfmt.Println(\"hi\")\n```\nOutro.",
			expected: "Intro.\n\nOutro.",
		},
		{
			name:     "inline code removed",
			input:    "Run `go build` to compile.",
			expected: "Run to compile.",
		},
		{
			name:     "blockquote marker removed",
			input:    "> quoted words\nnormal words",
			expected: "quoted words\nnormal words",
		},
		{
			name:     "whitespace runs collapsed",
			input:    "too   many    spaces\n\n\n\nand blank lines",
			expected: "too many spaces\n\nand blank lines",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "markup-only input sanitizes to empty",
			input:    "```\ncode only\n```",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, pipeline.Sanitize(tt.input))
		})
	}
}

func TestSanitizeNeverNarratesSyntax(t *testing.T) {
	t.Parallel()

	input := "# Title\n\nSome <em>text</em> with [a link](http://x.test) and `code`.\n" +
		"```\nblock\n```\n*emphasis* and ![img](http://x.test/i.png)."
	out := pipeline.Sanitize(input)

	for _, marker := range []string{"#", "<", ">", "[", "]", "`", "*", "http://x.test"} {
		assert.False(t, strings.Contains(out, marker),
			"sanitized output contains %q: %q", marker, out)
	}
}
