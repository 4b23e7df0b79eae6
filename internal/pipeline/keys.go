package pipeline

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Cache key conventions shared with the API layer. Workers invalidate these
// after every article mutation; the API layer populates them.
const articleQueryPattern = "article:query:*"

func articleIDKey(id uuid.UUID) string {
	return "article:id:" + id.String()
}

func articleSlugKey(slug string) string {
	return "article:slug:" + slug
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a URL-safe slug from free text. The article ID suffix keeps
// regenerated slugs deterministic per article and unique across articles.
func slugify(text string, id uuid.UUID) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	suffix := id.String()[:8]
	if slug == "" {
		return "article-" + suffix
	}
	return slug + "-" + suffix
}
