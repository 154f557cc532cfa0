package state

import (
	"time"
)

// TimeFormat is the timestamp layout used in snapshots and reports.
// It matches the format earlier releases wrote, so old snapshots stay
// readable.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time formatted for snapshots.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// AssetRef is one asset attached to a page: where it came from, where
// it landed on disk, and whether it was reused from the cache instead
// of downloaded for this page.
type AssetRef struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	Type      string `json:"type,omitempty"`
	Extension string `json:"extension,omitempty"`
	Reused    bool   `json:"reused,omitempty"`
}

// PageRecord is everything known about one crawled page. Records are
// created on first enqueue or first visit and never deleted during a
// run.
type PageRecord struct {
	// URL is the canonical page URL and the record's identity.
	URL string

	// Depth is the minimum depth at which the page was discovered.
	// A page reachable through several paths keeps the shallowest.
	Depth int

	// Title is the page title, when the page was fetched and had one.
	Title string

	// Assets lists attached assets in discovery order.
	Assets []AssetRef

	// Errors accumulates page-level failures (fetch errors, download
	// errors) without ever aborting the crawl.
	Errors []string

	// Referrers lists pages that linked here, in insertion order,
	// deduplicated.
	Referrers []string

	// LastStatus is the page's last fetch outcome ("fetched" or empty).
	LastStatus string
}

// HasAsset reports whether the page already carries an entry for the
// asset URL. Attachment is idempotent per URL: a page never lists the
// same asset twice.
func (p *PageRecord) HasAsset(assetURL string) bool {
	for _, a := range p.Assets {
		if a.URL == assetURL {
			return true
		}
	}
	return false
}

// CacheEntry describes a completed download whose file should still be
// on disk. Entries are evicted when the file goes missing or a later
// download of the same URL fails.
type CacheEntry struct {
	Path      string `json:"path"`
	Type      string `json:"type,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// ManifestPage is one referencing page inside a manifest entry.
type ManifestPage struct {
	Page   string `json:"page"`
	Depth  int    `json:"depth"`
	Path   string `json:"path"`
	Reused bool   `json:"reused,omitempty"`
}

// ManifestEntry aggregates one asset across every page that references
// it. DownloadCount counts referencing pages, not physical downloads;
// at most one of those ever happens per URL.
type ManifestEntry struct {
	Path          string         `json:"path"`
	Type          string         `json:"type,omitempty"`
	Extension     string         `json:"extension,omitempty"`
	FirstPage     string         `json:"first_page"`
	FirstDepth    int            `json:"first_depth"`
	FirstSeen     string         `json:"first_seen"`
	LastSeen      string         `json:"last_seen"`
	Pages         []ManifestPage `json:"pages"`
	DownloadCount int            `json:"download_count"`
}

// SkipEntry records one link excluded by policy. Observability only.
type SkipEntry struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// FrontierEntry is one queued (URL, depth) pair.
type FrontierEntry struct {
	URL   string
	Depth int
}

// CrawlState is the durable crawl data model: frontier, visited set,
// page records, asset cache and manifest, referrer graph, skip log,
// and the crawl-scope configuration needed to resume.
//
// CrawlState is not goroutine-safe. The engine guards it with a single
// coarse mutex; everything here is plain in-memory bookkeeping with no
// locking of its own.
type CrawlState struct {
	StartURL         string
	MaxDepth         int
	RespectRobots    bool
	SameDomainOnly   bool
	IncludePatterns  []string
	ExcludePatterns  []string
	TargetExtensions []string

	// Frontier is the FIFO queue of pages awaiting a fetch.
	Frontier []FrontierEntry

	// Visited holds canonical URLs already dequeued for fetching.
	// Grows monotonically for the run's lifetime.
	Visited map[string]struct{}

	// AssetCache maps asset URL to its completed download.
	AssetCache map[string]CacheEntry

	// Pages maps canonical URL to its record.
	Pages map[string]*PageRecord

	// Skipped is the append-only skip log.
	Skipped []SkipEntry

	StartedAt  string
	FinishedAt string

	// Referrers is the referrer graph, independent of page records so
	// edges survive regardless of discovery order.
	Referrers map[string][]string

	// AssetManifest aggregates assets across pages, keyed by asset URL.
	AssetManifest map[string]*ManifestEntry

	// queued mirrors the frontier as a set so duplicate enqueues are
	// cheap no-ops. Rebuilt from the frontier on load, never persisted.
	queued map[string]struct{}
}

// New creates an empty CrawlState for a fresh crawl.
func New(startURL string, maxDepth int) *CrawlState {
	return &CrawlState{
		StartURL:       startURL,
		MaxDepth:       maxDepth,
		RespectRobots:  true,
		SameDomainOnly: true,
		Visited:        make(map[string]struct{}),
		AssetCache:     make(map[string]CacheEntry),
		Pages:          make(map[string]*PageRecord),
		Referrers:      make(map[string][]string),
		AssetManifest:  make(map[string]*ManifestEntry),
		queued:         make(map[string]struct{}),
	}
}

// MarkStarted records the crawl start time once; resumed crawls keep
// the original start.
func (s *CrawlState) MarkStarted() {
	if s.StartedAt == "" {
		s.StartedAt = Now()
	}
}

// MarkFinished records the crawl end time.
func (s *CrawlState) MarkFinished() {
	s.FinishedAt = Now()
}

// Enqueue appends (url, depth) to the frontier. Visited URLs and URLs
// already queued are no-ops; it reports whether the entry was added.
func (s *CrawlState) Enqueue(url string, depth int) bool {
	if _, ok := s.Visited[url]; ok {
		return false
	}
	if _, ok := s.queued[url]; ok {
		return false
	}
	s.Frontier = append(s.Frontier, FrontierEntry{URL: url, Depth: depth})
	s.queued[url] = struct{}{}
	return true
}

// Dequeue pops the oldest frontier entry; ok is false when the
// frontier is empty.
func (s *CrawlState) Dequeue() (entry FrontierEntry, ok bool) {
	if len(s.Frontier) == 0 {
		return FrontierEntry{}, false
	}
	entry = s.Frontier[0]
	s.Frontier = s.Frontier[1:]
	delete(s.queued, entry.URL)
	return entry, true
}

// MarkVisited adds the URL to the visited set and reports whether it
// was newly added. Pages are marked visited at dispatch time, not at
// completion, so an interrupted fetch is re-discoverable on resume.
func (s *CrawlState) MarkVisited(url string) bool {
	if _, ok := s.Visited[url]; ok {
		return false
	}
	s.Visited[url] = struct{}{}
	return true
}

// Page returns the record for url, creating it at the given depth if
// needed. An existing record keeps the minimum of its depth and the
// new one (shallowest discovery wins for reporting), and any referrer
// edges recorded before the page existed are backfilled.
func (s *CrawlState) Page(url string, depth int) *PageRecord {
	record, ok := s.Pages[url]
	if !ok {
		record = &PageRecord{URL: url, Depth: depth}
		s.Pages[url] = record
	} else if depth < record.Depth {
		record.Depth = depth
	}
	for _, ref := range s.Referrers[url] {
		appendUnique(&record.Referrers, ref)
	}
	return record
}

// RecordReferrer adds a referrer edge to the graph, and to the page
// record when one exists. Idempotent.
func (s *CrawlState) RecordReferrer(url, referrer string) {
	if referrer == "" {
		return
	}
	appendUniqueMap(s.Referrers, url, referrer)
	if page, ok := s.Pages[url]; ok {
		appendUnique(&page.Referrers, referrer)
	}
}

// RegisterAsset merges one page's reference to an asset into the
// manifest. Registering the same asset from a new page appends to its
// page list; re-registering from the same page updates that entry in
// place. DownloadCount tracks the page list length.
func (s *CrawlState) RegisterAsset(assetURL, path, pageURL string, depth int, assetType, extension string, reused bool) {
	now := Now()
	entry, ok := s.AssetManifest[assetURL]
	if !ok {
		entry = &ManifestEntry{
			Path:       path,
			Type:       assetType,
			Extension:  extension,
			FirstPage:  pageURL,
			FirstDepth: depth,
			FirstSeen:  now,
		}
		s.AssetManifest[assetURL] = entry
	} else {
		entry.Path = path
		if assetType != "" {
			entry.Type = assetType
		}
		if extension != "" {
			entry.Extension = extension
		}
	}

	var seen bool
	for i := range entry.Pages {
		if entry.Pages[i].Page == pageURL {
			entry.Pages[i].Depth = depth
			entry.Pages[i].Path = path
			if reused {
				entry.Pages[i].Reused = true
			}
			seen = true
			break
		}
	}
	if !seen {
		entry.Pages = append(entry.Pages, ManifestPage{Page: pageURL, Depth: depth, Path: path, Reused: reused})
	}
	entry.LastSeen = now
	entry.DownloadCount = len(entry.Pages)
}

// RecordSkip appends to the skip log.
func (s *CrawlState) RecordSkip(url, reason string) {
	s.Skipped = append(s.Skipped, SkipEntry{URL: url, Reason: reason})
}

// TotalPages is the number of pages dequeued for fetching.
func (s *CrawlState) TotalPages() int {
	return len(s.Visited)
}

// AssetCount sums per-page asset list lengths. One asset referenced
// from many pages counts once per page, so this can exceed
// UniqueAssets.
func (s *CrawlState) AssetCount() int {
	var n int
	for _, page := range s.Pages {
		n += len(page.Assets)
	}
	return n
}

// UniqueAssets is the number of distinct assets in the manifest.
func (s *CrawlState) UniqueAssets() int {
	return len(s.AssetManifest)
}

// Duration returns the elapsed crawl time in seconds, using the
// current time while the crawl is still running. Zero when the crawl
// never started.
func (s *CrawlState) Duration() float64 {
	if s.StartedAt == "" {
		return 0
	}
	start, err := time.Parse(TimeFormat, s.StartedAt)
	if err != nil {
		return 0
	}
	end := time.Now().UTC()
	if s.FinishedAt != "" {
		if t, err := time.Parse(TimeFormat, s.FinishedAt); err == nil {
			end = t
		}
	}
	return end.Sub(start).Seconds()
}

func appendUnique(list *[]string, value string) {
	for _, v := range *list {
		if v == value {
			return
		}
	}
	*list = append(*list, value)
}

func appendUniqueMap(m map[string][]string, key, value string) {
	for _, v := range m[key] {
		if v == value {
			return
		}
	}
	m[key] = append(m[key], value)
}
