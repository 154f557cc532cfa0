package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrCorruptSnapshot is returned when a snapshot file exists but cannot
// be decoded. Callers decide whether to abort or fall back to a fresh
// crawl; Load never silently discards a corrupt snapshot.
var ErrCorruptSnapshot = errors.New("corrupt crawl snapshot")

// Earlier releases only downloaded PDFs and named the fields
// accordingly. Snapshots from those releases are still accepted: the
// legacy names map onto the current schema at load time, and Save
// emits both spellings so old tooling keeps working.
//
//	pdf_cache -> asset_cache
//	pdfs      -> assets (per page)
//	parents   -> referrers (per page)

// pageSnapshot is the wire form of a PageRecord.
type pageSnapshot struct {
	URL        string     `json:"url"`
	Depth      int        `json:"depth"`
	Title      string     `json:"title,omitempty"`
	Assets     []AssetRef `json:"assets"`
	PDFs       []AssetRef `json:"pdfs,omitempty"`
	Errors     []string   `json:"errors"`
	Referrers  []string   `json:"referrers"`
	Parents    []string   `json:"parents,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

// snapshot is the wire form of a CrawlState.
type snapshot struct {
	StartURL         string                    `json:"start_url"`
	MaxDepth         int                       `json:"max_depth"`
	RespectRobots    *bool                     `json:"respect_robots,omitempty"`
	SameDomainOnly   *bool                     `json:"same_domain_only,omitempty"`
	IncludePatterns  []string                  `json:"include_patterns"`
	ExcludePatterns  []string                  `json:"exclude_patterns"`
	TargetExtensions []string                  `json:"target_extensions"`
	Frontier         []frontierWire            `json:"frontier"`
	Visited          []string                  `json:"visited"`
	AssetCache       map[string]CacheEntry     `json:"asset_cache"`
	PDFCache         map[string]CacheEntry     `json:"pdf_cache,omitempty"`
	Pages            map[string]pageSnapshot   `json:"pages"`
	Skipped          []SkipEntry               `json:"skipped"`
	StartedAt        string                    `json:"started_at,omitempty"`
	FinishedAt       string                    `json:"finished_at,omitempty"`
	Referrers        map[string][]string       `json:"referrers"`
	AssetManifest    map[string]*ManifestEntry `json:"asset_manifest"`
}

// frontierWire carries one frontier entry. The original snapshot format
// serialized entries as two-element [url, depth] arrays; newer tooling
// may write objects. Both decode.
type frontierWire struct {
	URL   string
	Depth int
}

// MarshalJSON writes the historical [url, depth] pair form.
func (f frontierWire) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.URL, f.Depth})
}

// UnmarshalJSON accepts either a [url, depth] pair or a
// {"url": ..., "depth": ...} object.
func (f *frontierWire) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("frontier entry must have 2 elements, got %d", len(pair))
		}
		if err := json.Unmarshal(pair[0], &f.URL); err != nil {
			return err
		}
		return json.Unmarshal(pair[1], &f.Depth)
	}

	var obj struct {
		URL   string `json:"url"`
		Depth int    `json:"depth"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	f.URL = obj.URL
	f.Depth = obj.Depth
	return nil
}

// Snapshot serializes the full state. The caller is expected to hold
// the engine lock while this runs; the returned bytes can then be
// written to disk outside the critical section.
func (s *CrawlState) Snapshot() ([]byte, error) {
	visited := make([]string, 0, len(s.Visited))
	for url := range s.Visited {
		visited = append(visited, url)
	}
	sort.Strings(visited)

	frontier := make([]frontierWire, len(s.Frontier))
	for i, e := range s.Frontier {
		frontier[i] = frontierWire{URL: e.URL, Depth: e.Depth}
	}

	pages := make(map[string]pageSnapshot, len(s.Pages))
	for url, record := range s.Pages {
		pages[url] = pageSnapshot{
			URL:        record.URL,
			Depth:      record.Depth,
			Title:      record.Title,
			Assets:     record.Assets,
			PDFs:       record.Assets,
			Errors:     record.Errors,
			Referrers:  record.Referrers,
			LastStatus: record.LastStatus,
		}
	}

	respect := s.RespectRobots
	sameDomain := s.SameDomainOnly
	snap := snapshot{
		StartURL:         s.StartURL,
		MaxDepth:         s.MaxDepth,
		RespectRobots:    &respect,
		SameDomainOnly:   &sameDomain,
		IncludePatterns:  emptyIfNil(s.IncludePatterns),
		ExcludePatterns:  emptyIfNil(s.ExcludePatterns),
		TargetExtensions: emptyIfNil(s.TargetExtensions),
		Frontier:         frontier,
		Visited:          visited,
		AssetCache:       s.AssetCache,
		PDFCache:         s.AssetCache,
		Pages:            pages,
		Skipped:          emptySkipsIfNil(s.Skipped),
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		Referrers:        s.Referrers,
		AssetManifest:    s.AssetManifest,
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Save writes the snapshot atomically: a temp file in the same
// directory, then rename. A crash mid-write leaves the previous
// snapshot intact.
func (s *CrawlState) Save(path string) error {
	data, err := s.Snapshot()
	if err != nil {
		return fmt.Errorf("serialize crawl state: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// Load reads a snapshot and reconstructs an equivalent CrawlState:
// frontier order preserved, sets rebuilt, manifests intact. An empty
// or undecodable file returns an error wrapping ErrCorruptSnapshot.
// Missing fields default rather than fail, so snapshots from older
// releases load cleanly.
func Load(path string) (*CrawlState, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // Snapshot path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read crawl state %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptSnapshot, path)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, path, err)
	}
	if snap.StartURL == "" {
		return nil, fmt.Errorf("%w: %s has no start_url", ErrCorruptSnapshot, path)
	}

	s := New(snap.StartURL, snap.MaxDepth)
	if snap.RespectRobots != nil {
		s.RespectRobots = *snap.RespectRobots
	}
	if snap.SameDomainOnly != nil {
		s.SameDomainOnly = *snap.SameDomainOnly
	}
	s.IncludePatterns = snap.IncludePatterns
	s.ExcludePatterns = snap.ExcludePatterns
	s.TargetExtensions = snap.TargetExtensions
	s.Skipped = snap.Skipped
	s.StartedAt = snap.StartedAt
	s.FinishedAt = snap.FinishedAt

	for _, e := range snap.Frontier {
		s.Frontier = append(s.Frontier, FrontierEntry{URL: e.URL, Depth: e.Depth})
		s.queued[e.URL] = struct{}{}
	}
	for _, url := range snap.Visited {
		s.Visited[url] = struct{}{}
	}

	cache := snap.AssetCache
	if len(cache) == 0 && len(snap.PDFCache) > 0 {
		cache = snap.PDFCache
	}
	for url, entry := range cache {
		s.AssetCache[url] = entry
	}

	for url, ps := range snap.Pages {
		assets := ps.Assets
		if assets == nil && ps.PDFs != nil {
			assets = ps.PDFs
		}
		referrers := ps.Referrers
		if len(referrers) == 0 && len(ps.Parents) > 0 {
			referrers = ps.Parents
		}
		pageURL := ps.URL
		if pageURL == "" {
			pageURL = url
		}
		s.Pages[url] = &PageRecord{
			URL:        pageURL,
			Depth:      ps.Depth,
			Title:      ps.Title,
			Assets:     assets,
			Errors:     ps.Errors,
			Referrers:  referrers,
			LastStatus: ps.LastStatus,
		}
	}

	for url, refs := range snap.Referrers {
		s.Referrers[url] = refs
	}
	for url, entry := range snap.AssetManifest {
		if entry != nil {
			s.AssetManifest[url] = entry
		}
	}

	return s, nil
}

// HydrateCache merges the asset cache and manifest from a previous
// snapshot file into s without touching the frontier or visited set.
// A fresh crawl over the same tree can then reuse files that are still
// on disk instead of downloading them again. Missing or undecodable
// files are reported, not fatal; the caller decides how loudly to log.
func (s *CrawlState) HydrateCache(path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // Snapshot path comes from configuration
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode previous snapshot %s: %w", path, err)
	}

	cache := snap.AssetCache
	if len(cache) == 0 && len(snap.PDFCache) > 0 {
		cache = snap.PDFCache
	}
	for url, entry := range cache {
		if _, ok := s.AssetCache[url]; !ok {
			s.AssetCache[url] = entry
		}
	}
	for url, entry := range snap.AssetManifest {
		if entry == nil {
			continue
		}
		if _, ok := s.AssetManifest[url]; !ok {
			s.AssetManifest[url] = entry
		}
	}
	return nil
}

// WriteFileAtomic writes data via a temp file and rename so readers
// never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func emptySkipsIfNil(list []SkipEntry) []SkipEntry {
	if list == nil {
		return []SkipEntry{}
	}
	return list
}
