// Package report builds the structured crawl reports: the summary
// document, the download manifest, and the link map grouped by depth.
// Builders are pure functions over the crawl state; writers put the
// documents on disk atomically.
package report

import (
	"sort"

	"github.com/nao1215/filegrab/internal/state"
)

// Summary is the top-level crawl report.
type Summary struct {
	// StartURL and MaxDepth echo the crawl scope.
	StartURL string `json:"start_url"`
	MaxDepth int    `json:"max_depth"`

	// Duration is the crawl wall time in seconds.
	Duration float64 `json:"duration"`

	// PagesVisited counts pages with a record; AssetCount counts
	// page-to-asset attachments. PDFCount repeats AssetCount under
	// the name earlier releases used.
	PagesVisited int `json:"pages_visited"`
	AssetCount   int `json:"asset_count"`
	PDFCount     int `json:"pdf_count"`

	// Pages maps page URL to its full record.
	Pages map[string]PageReport `json:"pages"`

	// Skipped lists every rejected link with its reason.
	Skipped []state.SkipEntry `json:"skipped"`
}

// PageReport is one page in the summary. Assets and PDFs carry the
// same list; PDFs is the legacy spelling.
type PageReport struct {
	URL        string           `json:"url"`
	Depth      int              `json:"depth"`
	Title      string           `json:"title,omitempty"`
	Assets     []state.AssetRef `json:"assets"`
	PDFs       []state.AssetRef `json:"pdfs"`
	Errors     []string         `json:"errors"`
	Referrers  []string         `json:"referrers"`
	LastStatus string           `json:"last_status,omitempty"`
}

// Manifest is the download manifest: one entry per unique asset URL
// with every page that references it.
type Manifest struct {
	StartURL    string                          `json:"start_url"`
	GeneratedAt string                          `json:"generated_at"`
	Assets      map[string]*state.ManifestEntry `json:"assets"`
}

// LinksByDepth groups visited pages by their crawl depth.
type LinksByDepth struct {
	StartURL    string       `json:"start_url"`
	GeneratedAt string       `json:"generated_at"`
	Levels      []DepthLevel `json:"levels"`
}

// DepthLevel is one depth bucket, pages sorted by URL.
type DepthLevel struct {
	Depth int        `json:"depth"`
	Pages []LinkPage `json:"pages"`
}

// LinkPage is one page inside a depth bucket.
type LinkPage struct {
	URL        string           `json:"url"`
	Title      string           `json:"title,omitempty"`
	Referrers  []string         `json:"referrers"`
	AssetCount int              `json:"asset_count"`
	Assets     []state.AssetRef `json:"assets"`
}

// BuildSummary assembles the summary report. The caller must hold
// whatever lock guards st while this runs.
func BuildSummary(st *state.CrawlState) *Summary {
	pages := make(map[string]PageReport, len(st.Pages))
	for url, record := range st.Pages {
		assets := record.Assets
		if assets == nil {
			assets = []state.AssetRef{}
		}
		pages[url] = PageReport{
			URL:        record.URL,
			Depth:      record.Depth,
			Title:      record.Title,
			Assets:     assets,
			PDFs:       assets,
			Errors:     emptyIfNil(record.Errors),
			Referrers:  emptyIfNil(record.Referrers),
			LastStatus: record.LastStatus,
		}
	}

	skipped := st.Skipped
	if skipped == nil {
		skipped = []state.SkipEntry{}
	}

	assetCount := st.AssetCount()
	return &Summary{
		StartURL:     st.StartURL,
		MaxDepth:     st.MaxDepth,
		Duration:     st.Duration(),
		PagesVisited: st.TotalPages(),
		AssetCount:   assetCount,
		PDFCount:     assetCount,
		Pages:        pages,
		Skipped:      skipped,
	}
}

// BuildManifest assembles the download manifest.
func BuildManifest(st *state.CrawlState) *Manifest {
	assets := make(map[string]*state.ManifestEntry, len(st.AssetManifest))
	for url, entry := range st.AssetManifest {
		assets[url] = entry
	}
	return &Manifest{
		StartURL:    st.StartURL,
		GeneratedAt: state.Now(),
		Assets:      assets,
	}
}

// BuildLinksByDepth assembles the depth-grouped link map. Levels are
// ordered depth ascending and pages within a level sort by URL, so the
// document is deterministic for a given state.
func BuildLinksByDepth(st *state.CrawlState) *LinksByDepth {
	buckets := make(map[int][]LinkPage)
	for url, record := range st.Pages {
		assets := record.Assets
		if assets == nil {
			assets = []state.AssetRef{}
		}
		buckets[record.Depth] = append(buckets[record.Depth], LinkPage{
			URL:        url,
			Title:      record.Title,
			Referrers:  emptyIfNil(record.Referrers),
			AssetCount: len(record.Assets),
			Assets:     assets,
		})
	}

	depths := make([]int, 0, len(buckets))
	for depth := range buckets {
		depths = append(depths, depth)
	}
	sort.Ints(depths)

	levels := make([]DepthLevel, 0, len(depths))
	for _, depth := range depths {
		pages := buckets[depth]
		sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
		levels = append(levels, DepthLevel{Depth: depth, Pages: pages})
	}

	return &LinksByDepth{
		StartURL:    st.StartURL,
		GeneratedAt: state.Now(),
		Levels:      levels,
	}
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
