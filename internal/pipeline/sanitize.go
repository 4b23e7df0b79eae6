package pipeline

import (
	"regexp"
	"strings"
)

// Patterns applied by Sanitize, in order. Fenced code must go before inline
// code so a fence's backticks are not consumed as inline spans, and images
// before links so the leading "!" is not left behind.
var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`\n]*`")
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	headingRe    = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	blockquoteRe = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	emphasisRe   = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+?)(\*{1,3}|_{1,3})`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
)

// Sanitize strips markup from generated text so the speech provider never
// narrates literal syntax. It removes HTML tags, markdown headings, emphasis
// markers, links (keeping the link text), images, and fenced or inline code,
// then collapses whitespace runs and blank lines.
func Sanitize(text string) string {
	s := fencedCodeRe.ReplaceAllString(text, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	s = imageRe.ReplaceAllString(s, " ")
	s = linkRe.ReplaceAllString(s, "$1")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = headingRe.ReplaceAllString(s, "")
	s = blockquoteRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "$2")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
