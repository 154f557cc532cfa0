package crawler

import "github.com/nao1215/filegrab/internal/state"

// Crawl lifecycle states reported by Status.
const (
	StatusInitialized = "initialized"
	StatusRunning     = "running"
	StatusPaused      = "paused"
	StatusStopped     = "stopped"
	StatusFinished    = "finished"
)

// maxEvents bounds the in-memory event ring. statusEventCount is how
// many of those a Status snapshot carries.
const (
	maxEvents        = 100
	statusEventCount = 10
)

// Event is one entry in the crawl activity feed: a page fetched, an
// asset downloaded or reused, a link skipped, an error.
type Event struct {
	// Timestamp is when the event was recorded.
	Timestamp string `json:"timestamp"`

	// Action identifies the event kind, e.g. "page", "asset",
	// "asset_reuse", "enqueue", "skip", "page_error", "asset_error".
	Action string `json:"action"`

	// URL is the subject of the event.
	URL string `json:"url"`

	// Detail carries action-specific context: a file path, a skip
	// reason, an error message.
	Detail string `json:"detail,omitempty"`
}

// Status is a point-in-time view of a crawl, safe to serialize for a
// UI or a status endpoint. All fields are copies; mutating a Status
// has no effect on the engine.
type Status struct {
	// State is one of the lifecycle constants above.
	State string `json:"status"`

	// StartURL is the crawl's entry point.
	StartURL string `json:"start_url"`

	// PagesVisited counts pages dispatched to workers so far.
	PagesVisited int `json:"pages_visited"`

	// FrontierSize is the number of pages queued but not yet visited.
	FrontierSize int `json:"frontier_size"`

	// ActivePages and ActiveDownloads count in-flight workers.
	ActivePages     int `json:"active_pages"`
	ActiveDownloads int `json:"active_downloads"`

	// AssetCount is the total page-to-asset attachments; UniqueAssets
	// counts distinct downloaded files.
	AssetCount   int `json:"asset_count"`
	UniqueAssets int `json:"unique_assets"`

	// SkippedCount counts links rejected by scope filters or robots.
	SkippedCount int `json:"skipped_count"`

	// TargetExtensions is the extension set in effect for this crawl.
	TargetExtensions []string `json:"target_extensions"`

	// Events holds the most recent activity, newest first.
	Events []Event `json:"events"`
}

// recordEvent appends to the ring, newest first, evicting the oldest
// entry past maxEvents.
func (e *Engine) recordEvent(action, url, detail string) {
	ev := Event{
		Timestamp: state.Now(),
		Action:    action,
		URL:       url,
		Detail:    detail,
	}
	e.mu.Lock()
	e.events = append([]Event{ev}, e.events...)
	if len(e.events) > maxEvents {
		e.events = e.events[:maxEvents]
	}
	e.mu.Unlock()
}

// Status returns a consistent snapshot of the crawl. Safe to call from
// any goroutine at any point in the engine lifecycle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// statusLocked builds a Status. Caller holds e.mu.
func (e *Engine) statusLocked() Status {
	n := len(e.events)
	if n > statusEventCount {
		n = statusEventCount
	}
	events := make([]Event, n)
	copy(events, e.events[:n])

	extensions := make([]string, len(e.state.TargetExtensions))
	copy(extensions, e.state.TargetExtensions)

	return Status{
		State:            e.lifecycle,
		StartURL:         e.state.StartURL,
		PagesVisited:     len(e.state.Visited),
		FrontierSize:     len(e.state.Frontier),
		ActivePages:      e.activePages,
		ActiveDownloads:  e.activeDownloads,
		AssetCount:       e.state.AssetCount(),
		UniqueAssets:     e.state.UniqueAssets(),
		SkippedCount:     len(e.state.Skipped),
		TargetExtensions: extensions,
		Events:           events,
	}
}

// setLifecycle transitions the reported crawl state.
func (e *Engine) setLifecycle(s string) {
	e.mu.Lock()
	e.lifecycle = s
	e.mu.Unlock()
}
