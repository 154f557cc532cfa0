// Package crawler implements the breadth-first crawl engine: a shared
// frontier drained by a page-fetch worker pool, an asset-download pool
// behind a dedup coordinator, and cooperative pause/resume/stop.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/filegrab/internal/config"
	"github.com/nao1215/filegrab/internal/fetch"
	"github.com/nao1215/filegrab/internal/ratelimit"
	"github.com/nao1215/filegrab/internal/report"
	"github.com/nao1215/filegrab/internal/robots"
	"github.com/nao1215/filegrab/internal/state"
	"github.com/nao1215/filegrab/internal/urlutil"
)

// Skip reasons recorded when a discovered link is rejected.
const (
	skipExcludePattern = "exclude-pattern"
	skipIncludeMiss    = "include-miss"
	skipOffDomain      = "off-domain"
	skipRobots         = "robots"
)

// Poll intervals for the driving loop. The loop sleeps pausePoll while
// paused and drainPoll while the frontier is empty but workers are
// still in flight.
const (
	pausePoll = 300 * time.Millisecond
	drainPoll = 200 * time.Millisecond
)

// Archive persists fetched pages and downloaded assets to durable
// storage for post-crawl analysis. A nil Archive disables archiving.
type Archive interface {
	// SavePageFetch records one fetched page.
	SavePageFetch(ctx context.Context, pageURL string, depth int, title, status string) error

	// SaveAssetDownload records one asset download or reuse.
	SaveAssetDownload(ctx context.Context, assetURL, pageURL, path, contentType string, reused bool) error
}

// Engine runs one crawl. It owns the crawl state, both worker pools,
// and the activity feed.
//
// Design decision: A single coarse mutex guards all mutable state
// rather than per-structure locks because:
//  1. Several invariants span structures (frontier vs. visited set,
//     in-flight map vs. waiter lists) and need atomic updates
//  2. The lock is never held across network or file I/O, so
//     contention stays negligible at crawl concurrency levels
type Engine struct {
	cfg     *config.Config
	client  *fetch.Client
	limiter *ratelimit.Limiter
	robots  *robots.Oracle
	logger  *slog.Logger
	archive Archive

	mu    sync.Mutex
	state *state.CrawlState

	// inflight tracks asset URLs currently being downloaded; waiters
	// holds pages that requested an in-flight asset and will receive
	// it on completion.
	inflight map[string]struct{}
	waiters  map[string][]*state.PageRecord

	// activePages and activeDownloads count dispatched workers that
	// have not completed yet. The loop may only exit when both are
	// zero and the frontier is empty.
	activePages     int
	activeDownloads int

	events    []Event
	lifecycle string
	paused    bool
	running   bool

	dlGroup *errgroup.Group
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchive attaches a durable crawl archive.
func WithArchive(a Archive) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New builds an Engine from a validated Config. With cfg.Resume set it
// reloads the snapshot at cfg.StatePath; corrupt snapshots surface as
// state.ErrCorruptSnapshot rather than being silently discarded. A
// fresh crawl still hydrates the asset cache from any previous
// snapshot so files already on disk are reused, not re-downloaded.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		logger:    slog.Default(),
		inflight:  make(map[string]struct{}),
		waiters:   make(map[string][]*state.PageRecord),
		lifecycle: StatusInitialized,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.client = fetch.New(cfg.RequestTimeout,
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithRetry(cfg.RetryAttempts, cfg.RetryBackoff),
	)
	e.limiter = ratelimit.New(cfg.RateLimit)
	e.robots = robots.New(e.client.HTTPClient(), cfg.UserAgent, cfg.RespectRobots, e.logger)

	st, err := e.loadOrCreateState()
	if err != nil {
		return nil, err
	}
	e.state = st
	return e, nil
}

// loadOrCreateState resumes from the snapshot when configured and the
// file exists, otherwise starts fresh with the cache hydrated from any
// previous snapshot at the same path.
func (e *Engine) loadOrCreateState() (*state.CrawlState, error) {
	cfg := e.cfg
	if cfg.Resume {
		st, err := state.Load(cfg.StatePath)
		switch {
		case err == nil:
			e.logger.Info("resuming crawl",
				"state", cfg.StatePath,
				"frontier", len(st.Frontier),
				"visited", len(st.Visited))
			e.applyConfigToResumed(st)
			return st, nil
		case errors.Is(err, os.ErrNotExist):
			e.logger.Info("no snapshot to resume, starting fresh", "state", cfg.StatePath)
		default:
			return nil, err
		}
	}

	st := state.New(cfg.StartURL, cfg.MaxDepth)
	st.RespectRobots = cfg.RespectRobots
	st.SameDomainOnly = cfg.SameDomainOnly
	st.IncludePatterns = cfg.IncludePatterns
	st.ExcludePatterns = cfg.ExcludePatterns
	st.TargetExtensions = cfg.TargetExtensions
	st.Enqueue(cfg.StartURL, 0)

	if err := st.HydrateCache(cfg.StatePath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("previous snapshot unusable for cache hydration", "error", err)
		}
	} else if len(st.AssetCache) > 0 {
		e.logger.Info("hydrated asset cache from previous snapshot",
			"entries", len(st.AssetCache))
	}
	return st, nil
}

// applyConfigToResumed carries over the settings a user may legally
// change between runs. Scope settings (domain, patterns, depth) stick
// with the snapshot so a resumed crawl stays consistent with what it
// already visited; the extension set follows the current config.
func (e *Engine) applyConfigToResumed(st *state.CrawlState) {
	if len(e.cfg.TargetExtensions) > 0 {
		st.TargetExtensions = e.cfg.TargetExtensions
	}
	if len(st.TargetExtensions) == 0 {
		st.TargetExtensions = urlutil.NormalizeExtensions(config.DefaultTargetExtensions)
	}
}

// Start launches the driving loop. Calling Start on a running engine
// is a no-op; calling it again after the loop exits starts a new pass
// over whatever remains in the frontier.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.paused = false
	e.state.MarkStarted()
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	e.setLifecycle(StatusRunning)
	go e.run(stopCh, doneCh)
}

// Pause suspends dispatching. In-flight page and download workers run
// to completion; nothing new starts until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	wasRunning := e.running && !e.paused
	e.paused = true
	e.mu.Unlock()
	if wasRunning {
		e.setLifecycle(StatusPaused)
		e.logger.Info("crawl paused")
	}
}

// Resume lifts a pause, or restarts the loop if it already exited.
func (e *Engine) Resume() {
	e.mu.Lock()
	running := e.running
	e.paused = false
	e.mu.Unlock()

	if !running {
		e.Start()
		return
	}
	e.setLifecycle(StatusRunning)
	e.logger.Info("crawl resumed")
}

// Stop asks the loop to exit and waits up to cfg.StopTimeout for
// in-flight workers to drain. The final snapshot and reports are
// written even when the wait times out.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopCh, doneCh := e.stopCh, e.doneCh
	e.paused = false
	e.mu.Unlock()

	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(e.cfg.StopTimeout):
			e.logger.Warn("stop timed out waiting for workers", "timeout", e.cfg.StopTimeout)
		}
	}

	e.mu.Lock()
	e.state.MarkFinished()
	e.mu.Unlock()
	e.persist()
	e.writeReports()
	e.setLifecycle(StatusStopped)
	e.logger.Info("crawl stopped")
}

// Wait blocks until the driving loop exits. A zero timeout waits
// forever. Returns false when the timeout fired first.
func (e *Engine) Wait(timeout time.Duration) bool {
	e.mu.Lock()
	doneCh := e.doneCh
	e.mu.Unlock()
	if doneCh == nil {
		return true
	}
	if timeout <= 0 {
		<-doneCh
		return true
	}
	select {
	case <-doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsRunning reports whether the loop is active and not paused.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && !e.paused
}

// run is the driving loop goroutine. It drains the frontier into the
// page pool, waits for both pools, then finalizes.
func (e *Engine) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	pageGroup := &errgroup.Group{}
	pageGroup.SetLimit(e.cfg.Concurrency)
	dlGroup := &errgroup.Group{}
	dlGroup.SetLimit(e.cfg.DownloadConcurrency)

	e.mu.Lock()
	e.dlGroup = dlGroup
	e.mu.Unlock()

	e.loop(stopCh, pageGroup)

	_ = pageGroup.Wait()
	_ = dlGroup.Wait()

	e.mu.Lock()
	e.running = false
	e.state.MarkFinished()
	e.mu.Unlock()

	e.persist()
	e.writeReports()
	e.setLifecycle(StatusFinished)
	e.logger.Info("crawl finished",
		"pages", e.state.TotalPages(),
		"assets", e.state.UniqueAssets())
}

// loop dispatches frontier entries until the crawl drains or stop is
// requested.
func (e *Engine) loop(stopCh chan struct{}, pageGroup *errgroup.Group) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		e.mu.Lock()
		if e.paused {
			e.mu.Unlock()
			if !sleepOrStop(stopCh, pausePoll) {
				return
			}
			continue
		}

		entry, ok := e.state.Dequeue()
		if !ok {
			idle := e.activePages == 0 && e.activeDownloads == 0
			e.mu.Unlock()
			if idle {
				return
			}
			if !sleepOrStop(stopCh, drainPoll) {
				return
			}
			continue
		}
		if !e.state.MarkVisited(entry.URL) {
			e.mu.Unlock()
			continue
		}
		e.activePages++
		e.mu.Unlock()

		pageURL, depth := entry.URL, entry.Depth
		pageGroup.Go(func() error {
			defer e.pageDone()
			e.safeProcessPage(pageURL, depth)
			return nil
		})
	}
}

// sleepOrStop sleeps for d, returning false if stop fired first.
func sleepOrStop(stopCh chan struct{}, d time.Duration) bool {
	select {
	case <-stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// pageDone runs after every page worker, success or panic: it releases
// the active slot and persists the snapshot so a crash never loses
// more than one task's progress.
func (e *Engine) pageDone() {
	e.mu.Lock()
	e.activePages--
	e.mu.Unlock()
	e.persist()
}

// safeProcessPage isolates worker panics: one misbehaving page must
// not take down the crawl.
func (e *Engine) safeProcessPage(pageURL string, depth int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("page worker panic", "url", pageURL, "panic", r)
			e.recordPageError(pageURL, depth, fmt.Sprintf("worker-panic: %v", r))
		}
	}()
	e.processPage(context.Background(), pageURL, depth)
}

// processPage fetches one page, extracts its links, hands asset links
// to the download coordinator, and enqueues page links one level
// deeper.
func (e *Engine) processPage(ctx context.Context, pageURL string, depth int) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return
	}

	resp, err := e.client.Get(ctx, pageURL)
	if err != nil {
		e.logger.Warn("page fetch failed", "url", pageURL, "error", err)
		e.recordPageError(pageURL, depth, fmt.Sprintf("fetch-error: %v", err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		e.recordPageError(pageURL, depth, fmt.Sprintf("fetch-error: status %d", resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !e.parseableContentType(contentType) {
		e.logger.Debug("skipping non-HTML page", "url", pageURL, "content_type", contentType)
		e.mu.Lock()
		page := e.state.Page(pageURL, depth)
		page.LastStatus = "not-html"
		e.mu.Unlock()
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodySize))
	if err != nil {
		e.recordPageError(pageURL, depth, fmt.Sprintf("read-error: %v", err))
		return
	}

	doc, err := ParseDocument(bytes.NewReader(body))
	if err != nil {
		e.recordPageError(pageURL, depth, fmt.Sprintf("parse-error: %v", err))
		return
	}

	e.mu.Lock()
	page := e.state.Page(pageURL, depth)
	page.Title = doc.Title
	page.LastStatus = "fetched"
	e.mu.Unlock()

	e.recordEvent("page", pageURL, fmt.Sprintf("depth %d", depth))
	e.logger.Info("page fetched", "url", pageURL, "depth", depth, "links", len(doc.Candidates))

	assetLinks, pageLinks := e.classify(ctx, pageURL, doc.Candidates)

	if len(assetLinks) > 0 {
		folder := urlutil.PageFolder(e.cfg.OutputDir, pageURL, doc.Title)
		for _, a := range assetLinks {
			e.requestAsset(page, a.url, folder, a.label, a.extension)
		}
	}

	// Page links only propagate while the depth budget allows; the
	// referrer edge is part of that propagation, matching how link
	// depth reports are built.
	if depth < e.state.MaxDepth {
		for _, link := range pageLinks {
			e.enqueuePage(pageURL, link, depth+1)
		}
	}

	if e.archive != nil {
		if err := e.archive.SavePageFetch(ctx, pageURL, depth, doc.Title, "fetched"); err != nil {
			e.logger.Warn("archive page fetch failed", "url", pageURL, "error", err)
		}
	}
}

// parseableContentType reports whether a response should be parsed as
// HTML.
func (e *Engine) parseableContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, allowed := range e.cfg.AllowedContentTypes {
		if strings.Contains(ct, allowed) {
			return true
		}
	}
	return false
}

// assetCandidate is a classified asset link ready for the download
// coordinator.
type assetCandidate struct {
	url       string
	label     string
	extension string
}

// classify normalizes candidates against the page URL and splits them
// into asset links and follow-up page links. Scope filters apply in a
// fixed order, and each rejection is recorded with its reason:
// exclusion first, then inclusion, then domain scope, then robots.
func (e *Engine) classify(ctx context.Context, pageURL string, candidates []Candidate) ([]assetCandidate, []string) {
	var assets []assetCandidate
	var pages []string
	seenAssets := make(map[string]struct{})
	seenPages := make(map[string]struct{})

	for _, c := range candidates {
		normalized := urlutil.Normalize(pageURL, c.Href)
		if normalized == "" {
			continue
		}

		if urlutil.MatchPatterns(normalized, e.state.ExcludePatterns) {
			e.recordSkip(normalized, skipExcludePattern)
			continue
		}
		if len(e.state.IncludePatterns) > 0 && !urlutil.MatchPatterns(normalized, e.state.IncludePatterns) {
			e.recordSkip(normalized, skipIncludeMiss)
			continue
		}
		if e.state.SameDomainOnly && !urlutil.SameRegistrableDomain(normalized, e.state.StartURL) {
			e.recordSkip(normalized, skipOffDomain)
			continue
		}
		if !e.robots.Allowed(ctx, normalized) {
			e.recordSkip(normalized, skipRobots)
			continue
		}

		if ext := urlutil.MatchExtension(normalized, e.state.TargetExtensions); ext != "" {
			if _, dup := seenAssets[normalized]; dup {
				continue
			}
			seenAssets[normalized] = struct{}{}
			assets = append(assets, assetCandidate{url: normalized, label: c.Label, extension: ext})
			continue
		}

		if _, dup := seenPages[normalized]; dup {
			continue
		}
		seenPages[normalized] = struct{}{}
		pages = append(pages, normalized)
	}
	return assets, pages
}

// enqueuePage records the referrer edge and queues the page if it has
// not been seen before.
func (e *Engine) enqueuePage(parentURL, pageURL string, depth int) {
	e.mu.Lock()
	e.state.RecordReferrer(pageURL, parentURL)
	added := e.state.Enqueue(pageURL, depth)
	e.mu.Unlock()

	if added {
		e.recordEvent("enqueue", pageURL, fmt.Sprintf("depth %d via %s", depth, parentURL))
	}
}

// recordSkip notes a rejected link in state and the activity feed.
func (e *Engine) recordSkip(url, reason string) {
	e.mu.Lock()
	e.state.RecordSkip(url, reason)
	e.mu.Unlock()
	e.recordEvent("skip", url, reason)
	e.logger.Debug("link skipped", "url", url, "reason", reason)
}

// recordPageError attaches an error to the page record and the feed.
func (e *Engine) recordPageError(pageURL string, depth int, msg string) {
	e.mu.Lock()
	page := e.state.Page(pageURL, depth)
	page.Errors = append(page.Errors, msg)
	page.LastStatus = "error"
	e.mu.Unlock()
	e.recordEvent("page_error", pageURL, msg)
}

// persist snapshots the state under the lock and writes it outside.
func (e *Engine) persist() {
	e.mu.Lock()
	data, err := e.state.Snapshot()
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("serialize crawl state", "error", err)
		return
	}
	if err := state.WriteFileAtomic(e.cfg.StatePath, data); err != nil {
		e.logger.Error("persist crawl state", "error", err)
	}
}

// writeReports builds the report documents under the lock and writes
// them outside of it.
func (e *Engine) writeReports() {
	e.mu.Lock()
	summary := report.BuildSummary(e.state)
	manifest := report.BuildManifest(e.state)
	links := report.BuildLinksByDepth(e.state)
	e.mu.Unlock()

	if err := report.WriteJSON(e.cfg.ReportPath, summary); err != nil {
		e.logger.Error("write crawl report", "path", e.cfg.ReportPath, "error", err)
	}
	if err := report.WriteJSON(e.cfg.ManifestPath, manifest); err != nil {
		e.logger.Error("write download manifest", "path", e.cfg.ManifestPath, "error", err)
	}
	if err := report.WriteJSON(e.cfg.LinksReportPath, links); err != nil {
		e.logger.Error("write link depth report", "path", e.cfg.LinksReportPath, "error", err)
	}
	if e.cfg.SummaryPath != "" {
		if err := report.WriteMarkdownSummary(e.cfg.SummaryPath, summary); err != nil {
			e.logger.Error("write markdown summary", "path", e.cfg.SummaryPath, "error", err)
		}
	}
}
