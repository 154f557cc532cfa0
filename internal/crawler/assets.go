package crawler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/filegrab/internal/state"
	"github.com/nao1215/filegrab/internal/urlutil"
)

// requestAsset routes one asset link through the dedup coordinator.
// Exactly one of four things happens: the page already has the asset
// (no-op), the cache serves a file still on disk (reuse), a download
// is already in flight (the page waits on it), or a new download is
// dispatched. The asset URL is therefore fetched at most once per
// crawl no matter how many pages reference it.
func (e *Engine) requestAsset(page *state.PageRecord, assetURL, folder, label, extension string) {
	e.mu.Lock()
	if page.HasAsset(assetURL) {
		e.mu.Unlock()
		return
	}
	entry, cached := e.state.AssetCache[assetURL]
	e.mu.Unlock()

	if cached {
		if fileExists(entry.Path) {
			ext := entry.Extension
			if ext == "" {
				ext = extension
			}
			e.attachAsset(page, assetURL, entry.Path, entry.Type, ext, true)
			e.recordEvent("asset_reuse", assetURL, entry.Path)
			e.logger.Debug("asset served from cache", "url", assetURL, "path", entry.Path)
			return
		}
		// Cached file vanished from disk. Evict and fall through to a
		// fresh download.
		e.mu.Lock()
		delete(e.state.AssetCache, assetURL)
		e.mu.Unlock()
		e.logger.Warn("cached asset missing on disk, re-downloading", "url", assetURL, "path", entry.Path)
	}

	e.mu.Lock()
	// The cache may have been published since the consult above; retry
	// from the top so this page takes the reuse path.
	if _, nowCached := e.state.AssetCache[assetURL]; nowCached {
		e.mu.Unlock()
		e.requestAsset(page, assetURL, folder, label, extension)
		return
	}
	if _, busy := e.inflight[assetURL]; busy {
		for _, w := range e.waiters[assetURL] {
			if w == page {
				e.mu.Unlock()
				return
			}
		}
		e.waiters[assetURL] = append(e.waiters[assetURL], page)
		e.mu.Unlock()
		return
	}
	// Re-check under the lock: another worker may have attached the
	// asset between the cache consult and here.
	if page.HasAsset(assetURL) {
		e.mu.Unlock()
		return
	}
	e.inflight[assetURL] = struct{}{}
	e.activeDownloads++
	dlGroup := e.dlGroup
	e.mu.Unlock()

	dlGroup.Go(func() error {
		defer func() {
			e.mu.Lock()
			e.activeDownloads--
			e.mu.Unlock()
			e.persist()
		}()
		e.safeDownloadAsset(page, assetURL, folder, label, extension)
		return nil
	})
}

// safeDownloadAsset isolates download panics and guarantees the
// in-flight entry is cleared exactly once so waiters never block
// forever.
func (e *Engine) safeDownloadAsset(page *state.PageRecord, assetURL, folder, label, extension string) {
	var completed bool
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("download worker panic", "url", assetURL, "panic", r)
			if !completed {
				waiters := e.completeDownload(assetURL)
				e.failAsset(page, waiters, assetURL, fmt.Sprintf("worker-panic: %v", r), "")
			}
		}
	}()
	e.downloadAsset(page, assetURL, folder, label, extension, &completed)
}

// downloadAsset performs one asset download: HEAD probe for the
// content type, streaming GET to a collision-free path under folder,
// then attachment of the result to the requesting page and every
// waiter that piled up behind the in-flight entry.
func (e *Engine) downloadAsset(page *state.PageRecord, assetURL, folder, label, extension string, completed *bool) {
	ctx := context.Background()

	headType := e.probeContentType(ctx, assetURL)

	if err := e.limiter.Acquire(ctx); err != nil {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, fmt.Sprintf("download-error: %v", err), "")
		return
	}
	resp, err := e.client.Get(ctx, assetURL)
	if err != nil {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, fmt.Sprintf("download-error: %v", err), "")
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, fmt.Sprintf("download-error: status %d", resp.StatusCode), "")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = headType
	}
	// An HTML body where a file was expected usually means a login or
	// error page. Refuse it rather than saving garbage.
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, "download-error: content-type text/html", "")
		return
	}

	targetPath, err := e.targetPath(folder, assetURL, label, extension)
	if err != nil {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, fmt.Sprintf("download-error: %v", err), "")
		return
	}

	if err := writeStream(targetPath, resp.Body); err != nil {
		waiters := e.finishDownload(assetURL, completed)
		e.failAsset(page, waiters, assetURL, fmt.Sprintf("download-error: %v", err), targetPath)
		return
	}

	fileExt := extension
	if fileExt == "" {
		fileExt = strings.ToLower(filepath.Ext(targetPath))
	}

	waiters := e.publishDownload(assetURL, targetPath, contentType, fileExt, completed)
	e.attachAsset(page, assetURL, targetPath, contentType, fileExt, false)
	e.recordEvent("asset", assetURL, targetPath)
	e.logger.Info("asset downloaded", "url", assetURL, "path", targetPath)
	for _, w := range waiters {
		e.attachAsset(w, assetURL, targetPath, contentType, fileExt, true)
		e.recordEvent("asset_reuse", assetURL, targetPath)
	}

	if e.archive != nil {
		if err := e.archive.SaveAssetDownload(ctx, assetURL, page.URL, targetPath, contentType, false); err != nil {
			e.logger.Warn("archive asset download failed", "url", assetURL, "error", err)
		}
	}
}

// finishDownload clears the in-flight entry and collects the waiters
// in one critical section, marking the completion so the panic handler
// does not repeat it.
func (e *Engine) finishDownload(assetURL string, completed *bool) []*state.PageRecord {
	*completed = true
	return e.completeDownload(assetURL)
}

// publishDownload records the completed file in the cache, clears the
// in-flight marker, and drains the waiters in one critical section, so
// any page requesting the asset afterwards sees the cache hit rather
// than a fresh download slot.
func (e *Engine) publishDownload(assetURL, path, assetType, extension string, completed *bool) []*state.PageRecord {
	*completed = true
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.AssetCache[assetURL] = state.CacheEntry{
		Path:      path,
		Type:      assetType,
		Extension: extension,
	}
	delete(e.inflight, assetURL)
	waiters := e.waiters[assetURL]
	delete(e.waiters, assetURL)
	return waiters
}

// completeDownload removes the in-flight marker and drains the waiter
// list atomically. Any page that tries to request the asset after this
// point sees either the populated cache or a fresh download slot.
func (e *Engine) completeDownload(assetURL string) []*state.PageRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, assetURL)
	waiters := e.waiters[assetURL]
	delete(e.waiters, assetURL)
	return waiters
}

// attachAsset records a completed asset on one page: the per-page
// asset list, the global cache, and the manifest, all under the lock.
// Attaching the same url+path to a page twice is a no-op.
func (e *Engine) attachAsset(page *state.PageRecord, assetURL, path, assetType, extension string, reused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range page.Assets {
		if a.URL == assetURL && a.Path == path {
			return
		}
	}
	page.Assets = append(page.Assets, state.AssetRef{
		URL:       assetURL,
		Path:      path,
		Type:      assetType,
		Extension: extension,
		Reused:    reused,
	})
	e.state.AssetCache[assetURL] = state.CacheEntry{
		Path:      path,
		Type:      assetType,
		Extension: extension,
	}
	e.state.RegisterAsset(assetURL, path, page.URL, page.Depth, assetType, extension, reused)
}

// failAsset records a download failure on the requesting page and on
// every waiter, evicts the cache entry, and removes any partial file.
func (e *Engine) failAsset(page *state.PageRecord, waiters []*state.PageRecord, assetURL, msg, partialPath string) {
	e.mu.Lock()
	delete(e.state.AssetCache, assetURL)
	page.Errors = append(page.Errors, fmt.Sprintf("%s (%s)", msg, assetURL))
	for _, w := range waiters {
		if w != page {
			w.Errors = append(w.Errors, fmt.Sprintf("%s (%s)", msg, assetURL))
		}
	}
	e.mu.Unlock()

	if partialPath != "" {
		if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("remove partial download", "path", partialPath, "error", err)
		}
	}
	e.recordEvent("asset_error", assetURL, msg)
	e.logger.Warn("asset download failed", "url", assetURL, "error", msg)
}

// probeContentType issues a HEAD request for the content type. Any
// failure returns "" since the GET response supersedes it anyway.
func (e *Engine) probeContentType(ctx context.Context, assetURL string) string {
	if err := e.limiter.Acquire(ctx); err != nil {
		return ""
	}
	resp, err := e.client.Head(ctx, assetURL)
	if err != nil {
		return ""
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return ""
	}
	return resp.Header.Get("Content-Type")
}

// targetPath derives a collision-free download path inside folder.
// The filename prefers the human label over the URL basename, and the
// target extension is enforced as a suffix. Existing files get a
// numeric suffix rather than being overwritten.
func (e *Engine) targetPath(folder, assetURL, label, extension string) (string, error) {
	if err := os.MkdirAll(folder, 0750); err != nil {
		return "", fmt.Errorf("create download folder %s: %w", folder, err)
	}

	var name string
	if slug := urlutil.SlugifyTitle(label); label != "" && slug != "page" {
		name = slug
	} else {
		name = urlutil.FilenameFromURL(assetURL, "file")
		name = strings.TrimSuffix(name, filepath.Ext(name))
		name = urlutil.SanitizeForFS(name)
	}
	if name == "" {
		name = "file"
	}
	if extension != "" && !strings.HasSuffix(strings.ToLower(name), extension) {
		name += extension
	}

	candidate := filepath.Join(folder, name)
	if !fileExists(candidate) {
		return candidate, nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !fileExists(candidate) {
			return candidate, nil
		}
	}
}

// writeStream copies body to path, removing the file on a short write
// so a partial download never masquerades as a complete one.
func writeStream(path string, body io.Reader) error {
	f, err := os.Create(path) //nolint:gosec // Path is derived from the configured output directory
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// fileExists reports whether path exists as a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
