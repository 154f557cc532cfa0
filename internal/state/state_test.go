package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestFrontier tests FIFO ordering and duplicate suppression.
func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("dequeues in FIFO order", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		s.Enqueue("https://example.com/a", 1)
		s.Enqueue("https://example.com/b", 1)
		s.Enqueue("https://example.com/c", 2)

		var order []string
		for {
			entry, ok := s.Dequeue()
			if !ok {
				break
			}
			order = append(order, entry.URL)
		}
		want := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
		for i, url := range want {
			if order[i] != url {
				t.Errorf("position %d: expected %q, got %q", i, url, order[i])
			}
		}
	})

	t.Run("queued URLs are not re-enqueued", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		if !s.Enqueue("https://example.com/a", 1) {
			t.Fatal("first enqueue should succeed")
		}
		if s.Enqueue("https://example.com/a", 2) {
			t.Error("duplicate enqueue should be a no-op")
		}
		if len(s.Frontier) != 1 {
			t.Errorf("expected 1 frontier entry, got %d", len(s.Frontier))
		}
	})

	t.Run("visited URLs are not re-enqueued", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		s.MarkVisited("https://example.com/a")
		if s.Enqueue("https://example.com/a", 1) {
			t.Error("enqueue of visited URL should be a no-op")
		}
	})

	t.Run("mark visited reports first time only", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		if !s.MarkVisited("https://example.com/a") {
			t.Error("first visit should report true")
		}
		if s.MarkVisited("https://example.com/a") {
			t.Error("second visit should report false")
		}
	})
}

// TestPageRecords tests record creation, depth handling, and referrers.
func TestPageRecords(t *testing.T) {
	t.Parallel()

	t.Run("minimum depth wins", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 3)
		s.Page("https://example.com/deep", 3)
		page := s.Page("https://example.com/deep", 1)
		if page.Depth != 1 {
			t.Errorf("expected depth 1, got %d", page.Depth)
		}
		page = s.Page("https://example.com/deep", 2)
		if page.Depth != 1 {
			t.Errorf("depth should not grow, got %d", page.Depth)
		}
	})

	t.Run("referrers recorded before the page exists are backfilled", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 3)
		s.RecordReferrer("https://example.com/child", "https://example.com/parent")
		page := s.Page("https://example.com/child", 1)
		if len(page.Referrers) != 1 || page.Referrers[0] != "https://example.com/parent" {
			t.Errorf("expected backfilled referrer, got %v", page.Referrers)
		}
	})

	t.Run("referrer edges are idempotent", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 3)
		page := s.Page("https://example.com/child", 1)
		s.RecordReferrer("https://example.com/child", "https://example.com/parent")
		s.RecordReferrer("https://example.com/child", "https://example.com/parent")
		if len(page.Referrers) != 1 {
			t.Errorf("expected 1 referrer, got %v", page.Referrers)
		}
	})
}

// TestRegisterAsset tests manifest aggregation.
func TestRegisterAsset(t *testing.T) {
	t.Parallel()

	t.Run("new pages append, same page updates in place", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		s.RegisterAsset("https://example.com/f.pdf", "downloads/f.pdf", "https://example.com/a", 1, "application/pdf", ".pdf", false)
		s.RegisterAsset("https://example.com/f.pdf", "downloads/f.pdf", "https://example.com/b", 2, "application/pdf", ".pdf", true)
		s.RegisterAsset("https://example.com/f.pdf", "downloads/f.pdf", "https://example.com/a", 1, "application/pdf", ".pdf", false)

		entry := s.AssetManifest["https://example.com/f.pdf"]
		if entry == nil {
			t.Fatal("expected manifest entry")
		}
		if entry.FirstPage != "https://example.com/a" {
			t.Errorf("expected first page preserved, got %q", entry.FirstPage)
		}
		if len(entry.Pages) != 2 {
			t.Fatalf("expected 2 page entries, got %d", len(entry.Pages))
		}
		if entry.DownloadCount != 2 {
			t.Errorf("expected download_count 2, got %d", entry.DownloadCount)
		}
		if !entry.Pages[1].Reused {
			t.Error("expected second page marked reused")
		}
	})

	t.Run("reused flag is sticky per page", func(t *testing.T) {
		t.Parallel()

		s := New("https://example.com", 2)
		s.RegisterAsset("https://example.com/f.pdf", "p", "https://example.com/a", 1, "", ".pdf", true)
		s.RegisterAsset("https://example.com/f.pdf", "p", "https://example.com/a", 1, "", ".pdf", false)
		entry := s.AssetManifest["https://example.com/f.pdf"]
		if !entry.Pages[0].Reused {
			t.Error("reused should not be cleared by a later registration")
		}
	})
}

// TestSnapshotRoundTrip tests save/load fidelity.
func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_state.json")

	s := New("https://example.com", 2)
	s.IncludePatterns = []string{"/docs/"}
	s.ExcludePatterns = []string{"/private/"}
	s.TargetExtensions = []string{".pdf", ".zip"}
	s.MarkStarted()
	s.Enqueue("https://example.com/next", 1)
	s.MarkVisited("https://example.com")
	page := s.Page("https://example.com", 0)
	page.Title = "Home"
	page.LastStatus = "fetched"
	page.Assets = append(page.Assets, AssetRef{URL: "https://example.com/f.pdf", Path: "downloads/f.pdf", Extension: ".pdf"})
	s.AssetCache["https://example.com/f.pdf"] = CacheEntry{Path: "downloads/f.pdf", Extension: ".pdf"}
	s.RecordReferrer("https://example.com/next", "https://example.com")
	s.RegisterAsset("https://example.com/f.pdf", "downloads/f.pdf", "https://example.com", 0, "application/pdf", ".pdf", false)
	s.RecordSkip("https://other.org/x", "off-domain")

	if err := s.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.StartURL != s.StartURL || loaded.MaxDepth != s.MaxDepth {
		t.Errorf("scope fields did not survive: %+v", loaded)
	}
	if len(loaded.Frontier) != 1 || loaded.Frontier[0].URL != "https://example.com/next" || loaded.Frontier[0].Depth != 1 {
		t.Errorf("frontier did not survive: %+v", loaded.Frontier)
	}
	if _, ok := loaded.Visited["https://example.com"]; !ok {
		t.Error("visited set did not survive")
	}
	if loaded.Enqueue("https://example.com/next", 1) {
		t.Error("queued set not rebuilt: duplicate enqueue accepted")
	}
	lp := loaded.Pages["https://example.com"]
	if lp == nil || lp.Title != "Home" || len(lp.Assets) != 1 {
		t.Errorf("page record did not survive: %+v", lp)
	}
	if entry, ok := loaded.AssetCache["https://example.com/f.pdf"]; !ok || entry.Path != "downloads/f.pdf" {
		t.Errorf("asset cache did not survive: %+v", loaded.AssetCache)
	}
	manifest := loaded.AssetManifest["https://example.com/f.pdf"]
	if manifest == nil || manifest.DownloadCount != 1 || manifest.FirstPage != "https://example.com" {
		t.Errorf("manifest did not survive: %+v", manifest)
	}
	if len(loaded.Skipped) != 1 || loaded.Skipped[0].Reason != "off-domain" {
		t.Errorf("skip log did not survive: %+v", loaded.Skipped)
	}
	if len(loaded.Referrers["https://example.com/next"]) != 1 {
		t.Errorf("referrer graph did not survive: %+v", loaded.Referrers)
	}
}

// TestSnapshotLegacyAliases tests that old field spellings still load.
func TestSnapshotLegacyAliases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_state.json")

	legacy := map[string]any{
		"start_url": "https://example.com",
		"max_depth": 2,
		"frontier":  []any{[]any{"https://example.com/next", 1}},
		"visited":   []string{"https://example.com"},
		"pdf_cache": map[string]any{
			"https://example.com/f.pdf": map[string]any{"path": "downloads/f.pdf"},
		},
		"pages": map[string]any{
			"https://example.com": map[string]any{
				"url":   "https://example.com",
				"depth": 0,
				"pdfs": []any{
					map[string]any{"url": "https://example.com/f.pdf", "path": "downloads/f.pdf"},
				},
				"parents": []string{"https://referrer.example.com"},
			},
		},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy snapshot: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write legacy snapshot: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if entry, ok := loaded.AssetCache["https://example.com/f.pdf"]; !ok || entry.Path != "downloads/f.pdf" {
		t.Errorf("pdf_cache alias not honored: %+v", loaded.AssetCache)
	}
	page := loaded.Pages["https://example.com"]
	if page == nil || len(page.Assets) != 1 {
		t.Fatalf("pdfs alias not honored: %+v", page)
	}
	if len(page.Referrers) != 1 || page.Referrers[0] != "https://referrer.example.com" {
		t.Errorf("parents alias not honored: %+v", page.Referrers)
	}
	if loaded.Frontier[0].URL != "https://example.com/next" || loaded.Frontier[0].Depth != 1 {
		t.Errorf("pair-form frontier not honored: %+v", loaded.Frontier)
	}
}

// TestSnapshotSaveEmitsLegacyNames tests dual emission of old fields.
func TestSnapshotSaveEmitsLegacyNames(t *testing.T) {
	t.Parallel()

	s := New("https://example.com", 1)
	s.AssetCache["https://example.com/f.pdf"] = CacheEntry{Path: "downloads/f.pdf"}
	page := s.Page("https://example.com", 0)
	page.Assets = append(page.Assets, AssetRef{URL: "https://example.com/f.pdf", Path: "downloads/f.pdf"})

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if _, ok := raw["pdf_cache"]; !ok {
		t.Error("expected pdf_cache alias in snapshot")
	}
	if _, ok := raw["asset_cache"]; !ok {
		t.Error("expected asset_cache in snapshot")
	}
}

// TestLoadCorruptSnapshot tests the corrupt-file contract.
func TestLoadCorruptSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "empty.json")
		if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("expected ErrCorruptSnapshot, got %v", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "garbage.json")
		if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("expected ErrCorruptSnapshot, got %v", err)
		}
	})

	t.Run("missing start_url", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "no_start.json")
		if err := os.WriteFile(path, []byte(`{"max_depth": 2}`), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("expected ErrCorruptSnapshot, got %v", err)
		}
	})

	t.Run("missing file is not corrupt", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(dir, "absent.json"))
		if err == nil {
			t.Fatal("expected an error")
		}
		if errors.Is(err, ErrCorruptSnapshot) {
			t.Error("missing file should not report corruption")
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

// TestHydrateCache tests cache carry-over from a previous snapshot.
func TestHydrateCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "crawl_state.json")

	previous := New("https://example.com", 2)
	previous.AssetCache["https://example.com/f.pdf"] = CacheEntry{Path: "downloads/f.pdf"}
	previous.RegisterAsset("https://example.com/f.pdf", "downloads/f.pdf", "https://example.com", 0, "", ".pdf", false)
	if err := previous.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	fresh := New("https://example.com", 2)
	if err := fresh.HydrateCache(path); err != nil {
		t.Fatalf("hydrate failed: %v", err)
	}
	if _, ok := fresh.AssetCache["https://example.com/f.pdf"]; !ok {
		t.Error("expected cache entry hydrated")
	}
	if _, ok := fresh.AssetManifest["https://example.com/f.pdf"]; !ok {
		t.Error("expected manifest entry hydrated")
	}
	if len(fresh.Frontier) != 0 || len(fresh.Visited) != 0 {
		t.Error("hydration must not touch frontier or visited set")
	}
}
