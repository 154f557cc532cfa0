package database

import "context"

// RunArchive binds a CrawlDB to one crawl run so callers can record
// fetches and downloads without tracking the run ID themselves. It
// satisfies the crawl engine's archive hook.
type RunArchive struct {
	db    *CrawlDB
	runID int64
}

// BeginRunArchive opens a new run and returns an archive bound to it.
func (cdb *CrawlDB) BeginRunArchive(ctx context.Context, startURL string) (*RunArchive, error) {
	runID, err := cdb.StartRun(ctx, startURL)
	if err != nil {
		return nil, err
	}
	return &RunArchive{db: cdb, runID: runID}, nil
}

// RunID returns the run this archive is bound to.
func (a *RunArchive) RunID() int64 {
	return a.runID
}

// SavePageFetch records one fetched page for this run.
func (a *RunArchive) SavePageFetch(ctx context.Context, pageURL string, depth int, title, status string) error {
	return a.db.InsertPageFetch(ctx, a.runID, pageURL, depth, title, status)
}

// SaveAssetDownload records one asset download or reuse for this run.
func (a *RunArchive) SaveAssetDownload(ctx context.Context, assetURL, pageURL, path, contentType string, reused bool) error {
	return a.db.InsertAssetDownload(ctx, a.runID, assetURL, pageURL, path, contentType, reused)
}

// Finish stamps the run's completion counters.
func (a *RunArchive) Finish(ctx context.Context, pagesVisited, assetsDownloaded int) error {
	return a.db.FinishRun(ctx, a.runID, pagesVisited, assetsDownloaded)
}
