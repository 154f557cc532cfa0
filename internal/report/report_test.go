package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/filegrab/internal/state"
)

// sampleState builds a small three-page crawl with one shared asset
// and a couple of skips.
func sampleState() *state.CrawlState {
	st := state.New("https://example.com", 2)
	st.MarkStarted()

	st.MarkVisited("https://example.com")
	root := st.Page("https://example.com", 0)
	root.Title = "Home"
	root.LastStatus = "fetched"

	st.MarkVisited("https://example.com/b")
	st.MarkVisited("https://example.com/a")
	st.Page("https://example.com/b", 1).Title = "Bravo"
	st.Page("https://example.com/a", 1).Title = "Alpha"
	st.RecordReferrer("https://example.com/a", "https://example.com")
	st.RecordReferrer("https://example.com/b", "https://example.com")

	st.RegisterAsset("https://example.com/doc.pdf", "/tmp/doc.pdf", "https://example.com", 0, "application/pdf", ".pdf", false)
	st.RegisterAsset("https://example.com/doc.pdf", "/tmp/doc.pdf", "https://example.com/a", 1, "application/pdf", ".pdf", true)
	st.Page("https://example.com", 0).Assets = append(st.Page("https://example.com", 0).Assets,
		state.AssetRef{URL: "https://example.com/doc.pdf", Path: "/tmp/doc.pdf", Extension: ".pdf"})
	st.Page("https://example.com/a", 1).Assets = append(st.Page("https://example.com/a", 1).Assets,
		state.AssetRef{URL: "https://example.com/doc.pdf", Path: "/tmp/doc.pdf", Extension: ".pdf", Reused: true})

	st.RecordSkip("https://elsewhere.invalid/x.pdf", "off-domain")
	st.RecordSkip("mailto:team@example.com", "include-miss")
	return st
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	t.Run("carries counts and the legacy pdf aliases", func(t *testing.T) {
		t.Parallel()

		sum := BuildSummary(sampleState())
		if sum.StartURL != "https://example.com" {
			t.Errorf("unexpected start URL %q", sum.StartURL)
		}
		if sum.PagesVisited != 3 {
			t.Errorf("expected 3 pages visited, got %d", sum.PagesVisited)
		}
		if sum.AssetCount != 2 {
			t.Errorf("expected 2 asset attachments, got %d", sum.AssetCount)
		}
		if sum.PDFCount != sum.AssetCount {
			t.Errorf("pdf_count must mirror asset_count, got %d vs %d", sum.PDFCount, sum.AssetCount)
		}

		page := sum.Pages["https://example.com"]
		if len(page.Assets) != 1 || len(page.PDFs) != 1 {
			t.Errorf("expected assets and pdfs aliases populated, got %+v", page)
		}
		if len(sum.Skipped) != 2 {
			t.Errorf("expected 2 skip entries, got %d", len(sum.Skipped))
		}
	})

	t.Run("emits empty slices instead of null", func(t *testing.T) {
		t.Parallel()

		st := state.New("https://example.com", 1)
		st.MarkVisited("https://example.com")
		st.Page("https://example.com", 0)

		data, err := json.Marshal(BuildSummary(st))
		if err != nil {
			t.Fatal(err)
		}
		for _, key := range []string{`"assets":[]`, `"pdfs":[]`, `"errors":[]`, `"referrers":[]`, `"skipped":[]`} {
			if !strings.Contains(string(data), key) {
				t.Errorf("expected %s in output, got %s", key, data)
			}
		}
	})
}

func TestBuildManifest(t *testing.T) {
	t.Parallel()

	man := BuildManifest(sampleState())
	if man.GeneratedAt == "" {
		t.Error("expected a generation timestamp")
	}
	entry := man.Assets["https://example.com/doc.pdf"]
	if entry == nil {
		t.Fatal("asset missing from manifest")
	}
	if entry.DownloadCount != 2 {
		t.Errorf("expected download_count 2, got %d", entry.DownloadCount)
	}
	if entry.FirstPage != "https://example.com" {
		t.Errorf("expected first page kept, got %q", entry.FirstPage)
	}
	if !entry.Pages[1].Reused {
		t.Error("second referencing page should be marked reused")
	}
}

func TestBuildLinksByDepth(t *testing.T) {
	t.Parallel()

	links := BuildLinksByDepth(sampleState())
	if len(links.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(links.Levels))
	}
	if links.Levels[0].Depth != 0 || links.Levels[1].Depth != 1 {
		t.Errorf("levels must sort by depth, got %+v", links.Levels)
	}

	// Pages within a level sort by URL regardless of visit order.
	level1 := links.Levels[1].Pages
	if len(level1) != 2 || level1[0].URL != "https://example.com/a" || level1[1].URL != "https://example.com/b" {
		t.Errorf("pages must sort by URL, got %+v", level1)
	}
	if level1[0].AssetCount != 1 {
		t.Errorf("expected asset count on depth-1 page, got %d", level1[0].AssetCount)
	}
	if len(level1[0].Referrers) != 1 || level1[0].Referrers[0] != "https://example.com" {
		t.Errorf("expected referrer list, got %v", level1[0].Referrers)
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := WriteJSON(path, BuildSummary(sampleState())); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // Test-owned temp path
	if err != nil {
		t.Fatal(err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("written report is not valid JSON: %v", err)
	}
	if sum.PagesVisited != 3 {
		t.Errorf("round trip lost data: %+v", sum)
	}
	// Indented output is part of the contract with humans.
	if !strings.Contains(string(data), "\n  ") {
		t.Error("expected indented JSON")
	}
}

func TestWriteMarkdownSummary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "summary.md")
	if err := WriteMarkdownSummary(path, BuildSummary(sampleState())); err != nil {
		t.Fatalf("WriteMarkdownSummary failed: %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // Test-owned temp path
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# Crawl Report", "https://example.com/a", "off-domain"} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown summary missing %q:\n%s", want, text)
		}
	}
}
