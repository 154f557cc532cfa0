package urlutil

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// invalidFSChars are characters rejected by at least one supported
// filesystem (Windows being the strictest).
const invalidFSChars = `<>:"/\|?*`

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonSlugRune   = regexp.MustCompile(`[^\p{L}\p{N}\s_-]`)
	dashRun       = regexp.MustCompile(`-{2,}`)
)

// SanitizeForFS makes text safe to use as a single path segment.
// Invalid characters and whitespace runs become underscores and the
// result is capped at 150 bytes. An empty result becomes "item".
func SanitizeForFS(text string) string {
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(invalidFSChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	sanitized := strings.TrimSpace(b.String())
	sanitized = whitespaceRun.ReplaceAllString(sanitized, "_")
	if len(sanitized) > 150 {
		sanitized = sanitized[:150]
	}
	if sanitized == "" {
		return "item"
	}
	return sanitized
}

// SlugifyTitle turns a page title into a short lowercase slug suitable
// for a folder name. The title is NFKC-normalized first so width and
// compatibility variants collapse to a single spelling. An unusable
// title yields "page".
func SlugifyTitle(title string) string {
	normalized := strings.TrimSpace(norm.NFKC.String(title))
	if normalized == "" {
		return "page"
	}
	cleaned := nonSlugRune.ReplaceAllString(normalized, " ")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	if cleaned == "" {
		return "page"
	}
	slug := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, cleaned)
	slug = dashRun.ReplaceAllString(slug, "-")
	if len(slug) > 120 {
		slug = slug[:120]
	}
	if slug == "" {
		return "page"
	}
	return slug
}

// PageFolder builds the download folder for assets discovered on a
// page: host, then each path segment, then the query (if any), then
// the title slug (or "index" without a title). Every segment is
// sanitized independently.
func PageFolder(baseDir, pageURL, title string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return filepath.Join(baseDir, SanitizeForFS(pageURL))
	}

	segments := []string{SanitizeForFS(u.Host)}
	var hasPath bool
	for _, part := range strings.Split(u.Path, "/") {
		if part == "" {
			continue
		}
		hasPath = true
		segments = append(segments, SanitizeForFS(part))
	}
	if !hasPath {
		segments = append(segments, "root")
	}
	if u.RawQuery != "" {
		segments = append(segments, SanitizeForFS(u.RawQuery))
	}
	if title != "" {
		segments = append(segments, SanitizeForFS(SlugifyTitle(title)))
	} else {
		segments = append(segments, "index")
	}

	return filepath.Join(append([]string{baseDir}, segments...)...)
}
