package urlutil

import (
	"path/filepath"
	"reflect"
	"testing"
)

// TestNormalize tests URL canonicalization.
func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("resolves relative references against the base", func(t *testing.T) {
		t.Parallel()

		got := Normalize("https://example.com/docs/index.html", "../files/report.pdf")
		want := "https://example.com/files/report.pdf"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("strips fragments", func(t *testing.T) {
		t.Parallel()

		got := Normalize("https://example.com/", "https://example.com/page#section-2")
		if got != "https://example.com/page" {
			t.Errorf("expected fragment stripped, got %q", got)
		}
	})

	t.Run("strips trailing slash except for root", func(t *testing.T) {
		t.Parallel()

		if got := Normalize("", "https://example.com/docs/"); got != "https://example.com/docs" {
			t.Errorf("expected trailing slash stripped, got %q", got)
		}
		if got := Normalize("", "https://example.com/"); got != "https://example.com/" {
			t.Errorf("expected root slash kept, got %q", got)
		}
	})

	t.Run("rejects pseudo-schemes", func(t *testing.T) {
		t.Parallel()

		for _, href := range []string{"mailto:team@example.com", "javascript:void(0)", "ftp://example.com/file.zip"} {
			if got := Normalize("https://example.com/", href); got != "" {
				t.Errorf("expected %q rejected, got %q", href, got)
			}
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		first := Normalize("https://example.com/docs/", "sub/page/#top")
		second := Normalize("", first)
		if first != second {
			t.Errorf("normalization not idempotent: %q then %q", first, second)
		}
	})

	t.Run("empty and whitespace hrefs yield nothing", func(t *testing.T) {
		t.Parallel()

		if got := Normalize("https://example.com/", "   "); got != "" {
			t.Errorf("expected empty result, got %q", got)
		}
	})
}

// TestRegistrableDomain tests eTLD+1 extraction and its fallbacks.
func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	t.Run("collapses subdomains", func(t *testing.T) {
		t.Parallel()

		if got := RegistrableDomain("https://docs.blog.example.co.uk/page"); got != "example.co.uk" {
			t.Errorf("expected example.co.uk, got %q", got)
		}
	})

	t.Run("falls back to the bare host for IPs and localhost", func(t *testing.T) {
		t.Parallel()

		if got := RegistrableDomain("http://127.0.0.1:8080/x"); got != "127.0.0.1" {
			t.Errorf("expected 127.0.0.1, got %q", got)
		}
		if got := RegistrableDomain("http://localhost/x"); got != "localhost" {
			t.Errorf("expected localhost, got %q", got)
		}
	})

	t.Run("same domain matches across subdomains", func(t *testing.T) {
		t.Parallel()

		if !SameRegistrableDomain("https://blog.example.com/a", "https://www.example.com/b") {
			t.Error("expected subdomains of example.com to match")
		}
		if SameRegistrableDomain("https://example.com/a", "https://example.org/b") {
			t.Error("expected different domains not to match")
		}
	})
}

// TestMatchPatterns tests regex matching with the literal fallback.
func TestMatchPatterns(t *testing.T) {
	t.Parallel()

	t.Run("matches regular expressions", func(t *testing.T) {
		t.Parallel()

		if !MatchPatterns("https://example.com/reports/2024.pdf", []string{`/reports/\d{4}`}) {
			t.Error("expected pattern to match")
		}
		if MatchPatterns("https://example.com/about", []string{`/reports/`}) {
			t.Error("expected pattern not to match")
		}
	})

	t.Run("malformed pattern degrades to substring", func(t *testing.T) {
		t.Parallel()

		if !MatchPatterns("https://example.com/a[b", []string{"a[b"}) {
			t.Error("expected literal fallback to match")
		}
	})

	t.Run("empty pattern list never matches", func(t *testing.T) {
		t.Parallel()

		if MatchPatterns("https://example.com/", nil) {
			t.Error("expected no match for empty patterns")
		}
	})
}

// TestMatchExtension tests target extension matching.
func TestMatchExtension(t *testing.T) {
	t.Parallel()

	exts := []string{".pdf", ".tar.gz", ".gz"}

	t.Run("longest extension wins", func(t *testing.T) {
		t.Parallel()

		if got := MatchExtension("https://example.com/archive.tar.gz", exts); got != ".tar.gz" {
			t.Errorf("expected .tar.gz, got %q", got)
		}
	})

	t.Run("case-insensitive on the URL path", func(t *testing.T) {
		t.Parallel()

		if got := MatchExtension("https://example.com/Report.PDF", exts); got != ".pdf" {
			t.Errorf("expected .pdf, got %q", got)
		}
	})

	t.Run("query strings do not fake a match", func(t *testing.T) {
		t.Parallel()

		if got := MatchExtension("https://example.com/page?file=x.pdf", exts); got != "" {
			t.Errorf("expected no match, got %q", got)
		}
	})
}

// TestNormalizeExtensions tests extension list cleanup.
func TestNormalizeExtensions(t *testing.T) {
	t.Parallel()

	got := NormalizeExtensions([]string{"PDF", ".zip", " pdf ", "", "Docx"})
	want := []string{".docx", ".pdf", ".zip"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestSanitizeForFS tests path segment sanitization.
func TestSanitizeForFS(t *testing.T) {
	t.Parallel()

	t.Run("replaces invalid characters and whitespace", func(t *testing.T) {
		t.Parallel()

		if got := SanitizeForFS(`a<b>c: d/e`); got != "a_b_c__d_e" {
			t.Errorf("unexpected sanitized value %q", got)
		}
	})

	t.Run("empty input becomes item", func(t *testing.T) {
		t.Parallel()

		if got := SanitizeForFS("   "); got != "item" {
			t.Errorf("expected item, got %q", got)
		}
	})
}

// TestSlugifyTitle tests title slugs.
func TestSlugifyTitle(t *testing.T) {
	t.Parallel()

	t.Run("lowercases and dashes", func(t *testing.T) {
		t.Parallel()

		if got := SlugifyTitle("Quarterly Report (2024)!"); got != "quarterly-report-2024" {
			t.Errorf("unexpected slug %q", got)
		}
	})

	t.Run("unusable title yields page", func(t *testing.T) {
		t.Parallel()

		if got := SlugifyTitle("!!!"); got != "page" {
			t.Errorf("expected page, got %q", got)
		}
	})
}

// TestPageFolder tests download folder derivation.
func TestPageFolder(t *testing.T) {
	t.Parallel()

	t.Run("host, path segments, then title slug", func(t *testing.T) {
		t.Parallel()

		got := PageFolder("downloads", "https://example.com/docs/archive", "Annual Report")
		want := filepath.Join("downloads", "example.com", "docs", "archive", "annual-report")
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("pathless URL uses root, missing title uses index", func(t *testing.T) {
		t.Parallel()

		got := PageFolder("downloads", "https://example.com", "")
		want := filepath.Join("downloads", "example.com", "root", "index")
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

// TestFilenameFromURL tests filename derivation.
func TestFilenameFromURL(t *testing.T) {
	t.Parallel()

	if got := FilenameFromURL("https://example.com/files/report.pdf?v=2", "file"); got != "report.pdf" {
		t.Errorf("expected report.pdf, got %q", got)
	}
	if got := FilenameFromURL("https://example.com/files/", "file"); got != "file" {
		t.Errorf("expected fallback, got %q", got)
	}
}
