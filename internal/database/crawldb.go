package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// CrawlDB provides SQLite-based storage for crawl history.
// It manages connection pooling and provides methods for recording
// runs, page fetches, and asset downloads.
//
// Design decision: We use a single database file across runs rather
// than one file per crawl. History queries ("when did we last fetch
// this URL", "which runs downloaded this file") need all runs in one
// place, and the runs table keeps them apart.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, "filegrab.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection also keeps
	// the WAL checkpointing simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Runs group page fetches and downloads into one crawl session
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		pages_visited INTEGER DEFAULT 0,
		assets_downloaded INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start_url ON runs(start_url);

	-- Page fetches store one row per page visited in a run
	CREATE TABLE IF NOT EXISTS page_fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT,
		status TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_url ON page_fetches(url);
	CREATE INDEX IF NOT EXISTS idx_fetches_run ON page_fetches(run_id);

	-- Asset downloads store one row per page-to-file attachment
	CREATE TABLE IF NOT EXISTS asset_downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		asset_url TEXT NOT NULL,
		page_url TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT,
		reused INTEGER DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, asset_url, page_url)
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_asset ON asset_downloads(asset_url);
	CREATE INDEX IF NOT EXISTS idx_downloads_run ON asset_downloads(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// StartRun records the beginning of a crawl and returns its run ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, startURL string) (int64, error) {
	result, err := cdb.db.ExecContext(ctx,
		"INSERT INTO runs (start_url) VALUES (?)", startURL)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun stamps the run's end time and final counters.
func (cdb *CrawlDB) FinishRun(ctx context.Context, runID int64, pagesVisited, assetsDownloaded int) error {
	_, err := cdb.db.ExecContext(ctx, `
	UPDATE runs SET
		finished_at = CURRENT_TIMESTAMP,
		pages_visited = ?,
		assets_downloaded = ?
	WHERE id = ?`, pagesVisited, assetsDownloaded, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// PageFetch is a stored page visit.
type PageFetch struct {
	ID        int64
	RunID     int64
	URL       string
	Depth     int
	Title     string
	Status    string
	Timestamp time.Time
}

// InsertPageFetch inserts or updates a page fetch record.
// Uses UPSERT to handle re-fetches of the same URL within a run.
func (cdb *CrawlDB) InsertPageFetch(ctx context.Context, runID int64, url string, depth int, title, status string) error {
	query := `
	INSERT INTO page_fetches (run_id, url, depth, title, status)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		depth = excluded.depth,
		title = excluded.title,
		status = excluded.status,
		timestamp = CURRENT_TIMESTAMP
	`
	if _, err := cdb.db.ExecContext(ctx, query, runID, url, depth, title, status); err != nil {
		return fmt.Errorf("failed to insert page fetch: %w", err)
	}
	return nil
}

// GetPageFetch retrieves a page fetch by run and URL.
// Returns nil without error when no row exists.
func (cdb *CrawlDB) GetPageFetch(ctx context.Context, runID int64, url string) (*PageFetch, error) {
	query := `
	SELECT id, run_id, url, depth, title, status, timestamp
	FROM page_fetches
	WHERE run_id = ? AND url = ?
	`
	var fetch PageFetch
	var timestamp string
	err := cdb.db.QueryRowContext(ctx, query, runID, url).Scan(
		&fetch.ID,
		&fetch.RunID,
		&fetch.URL,
		&fetch.Depth,
		&fetch.Title,
		&fetch.Status,
		&timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page fetch: %w", err)
	}
	fetch.Timestamp = parseTimestamp(timestamp)
	return &fetch, nil
}

// AssetDownload is a stored page-to-file attachment.
type AssetDownload struct {
	ID          int64
	RunID       int64
	AssetURL    string
	PageURL     string
	Path        string
	ContentType string
	Reused      bool
	Timestamp   time.Time
}

// InsertAssetDownload inserts or updates an asset download record.
func (cdb *CrawlDB) InsertAssetDownload(ctx context.Context, runID int64, assetURL, pageURL, path, contentType string, reused bool) error {
	query := `
	INSERT INTO asset_downloads (run_id, asset_url, page_url, path, content_type, reused)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, asset_url, page_url) DO UPDATE SET
		path = excluded.path,
		content_type = excluded.content_type,
		reused = excluded.reused,
		timestamp = CURRENT_TIMESTAMP
	`
	if _, err := cdb.db.ExecContext(ctx, query, runID, assetURL, pageURL, path, contentType, boolToInt(reused)); err != nil {
		return fmt.Errorf("failed to insert asset download: %w", err)
	}
	return nil
}

// ListAssetDownloads returns every download recorded for a run,
// ordered by insertion.
func (cdb *CrawlDB) ListAssetDownloads(ctx context.Context, runID int64) ([]AssetDownload, error) {
	query := `
	SELECT id, run_id, asset_url, page_url, path, content_type, reused, timestamp
	FROM asset_downloads
	WHERE run_id = ?
	ORDER BY id
	`
	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var downloads []AssetDownload
	for rows.Next() {
		var d AssetDownload
		var reused int
		var timestamp string
		if err := rows.Scan(&d.ID, &d.RunID, &d.AssetURL, &d.PageURL, &d.Path, &d.ContentType, &reused, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan asset download: %w", err)
		}
		d.Reused = reused != 0
		d.Timestamp = parseTimestamp(timestamp)
		downloads = append(downloads, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset downloads: %w", err)
	}
	return downloads, nil
}

// HasRecentFetch reports whether url was fetched in any run within
// the given duration. Useful for politeness across repeated runs.
func (cdb *CrawlDB) HasRecentFetch(ctx context.Context, url string, within time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-within).Format("2006-01-02 15:04:05")
	query := `
	SELECT COUNT(*) FROM page_fetches
	WHERE url = ? AND timestamp > ?
	`
	var count int
	if err := cdb.db.QueryRowContext(ctx, query, url, cutoff).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check recent fetch: %w", err)
	}
	return count > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
