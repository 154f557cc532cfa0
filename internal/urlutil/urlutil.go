package urlutil

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Normalize resolves href against base and returns the canonical form of
// the result, or an empty string when the reference is not crawlable.
//
// Canonical means: absolute http(s) URL, fragment stripped, trailing
// slash stripped except for the root path. Pseudo-schemes such as
// mailto: and javascript: are rejected outright.
//
// Normalize is idempotent: normalizing an already-canonical URL yields
// the same string. The crawler relies on this for deduplication.
func Normalize(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	joined := ref
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		joined = b.ResolveReference(ref)
	}

	if joined.Scheme != "http" && joined.Scheme != "https" {
		return ""
	}

	joined.Fragment = ""

	normalized := joined.String()
	// Keep the trailing slash only for the root path, so that
	// http://example.com/ and http://example.com/docs/ both map to a
	// single canonical spelling per page.
	if joined.Path != "/" {
		normalized = strings.TrimRight(normalized, "/")
	}
	return normalized
}

// RegistrableDomain returns the effective top-level-domain-plus-one for
// the URL's host (e.g. "docs.example.co.uk" -> "example.co.uk"). Hosts
// without a public suffix (IP addresses, localhost, bare hostnames)
// are returned as-is so same-host comparisons still work in tests and
// intranet crawls.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld
}

// SameRegistrableDomain reports whether two URLs share a registrable
// domain. Subdomains match: blog.example.com and www.example.com are
// the same site for crawl-scoping purposes.
func SameRegistrableDomain(rawURL, reference string) bool {
	d := RegistrableDomain(rawURL)
	return d != "" && d == RegistrableDomain(reference)
}

// MatchPatterns reports whether value matches any of the given regular
// expressions. A pattern that fails to compile degrades to a literal
// substring check instead of failing the crawl; user-supplied patterns
// must never abort a run.
func MatchPatterns(value string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			// Malformed pattern: degrade to a literal substring test.
			if strings.Contains(value, pattern) {
				return true
			}
			continue
		}
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// MatchExtension compares the URL path's suffix against the extension
// set and returns the matched extension, or an empty string. Longer
// extensions win (".tar.gz" beats ".gz") and matching is
// case-insensitive. Extensions are expected in normalized ".ext" form.
func MatchExtension(rawURL string, extensions []string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.ToLower(u.Path)

	ordered := make([]string, 0, len(extensions))
	seen := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		ordered = append(ordered, ext)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	for _, ext := range ordered {
		if strings.HasSuffix(p, ext) {
			return ext
		}
	}
	return ""
}

// NormalizeExtensions cleans a raw extension list: lowercase, leading
// dot enforced, blanks dropped, duplicates removed, result sorted.
func NormalizeExtensions(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	normalized := make([]string, 0, len(raw))
	for _, ext := range raw {
		cleaned := strings.ToLower(strings.TrimSpace(ext))
		if cleaned == "" {
			continue
		}
		if !strings.HasPrefix(cleaned, ".") {
			cleaned = "." + cleaned
		}
		if seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		normalized = append(normalized, cleaned)
	}
	sort.Strings(normalized)
	return normalized
}

// FilenameFromURL derives a filename from the URL path's last segment.
// When the segment has no extension (or the path is empty), fallback is
// used instead. The result is always filesystem-safe.
func FilenameFromURL(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		name := path.Base(u.Path)
		if name != "" && name != "/" && name != "." && path.Ext(name) != "" {
			return SanitizeForFS(name)
		}
	}
	return SanitizeForFS(fallback)
}
