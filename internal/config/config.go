package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/filegrab/internal/urlutil"
)

// Default configuration values.
// These mirror the defaults of a polite, same-domain file crawl: fast
// enough to be useful, slow enough to not hammer anyone's server.
const (
	// DefaultMaxDepth keeps crawls shallow by default. Depth 0 means
	// only the start page; each level multiplies the frontier, so 3 is
	// already a lot of pages on a well-linked site.
	DefaultMaxDepth = 3

	// DefaultConcurrency is the page-fetch worker pool size. Page
	// fetches are I/O bound, so a moderately large pool is fine; the
	// rate limiter, not the pool size, controls server load.
	DefaultConcurrency = 16

	// DefaultDownloadConcurrency sizes the asset-download pool
	// independently of the page pool. Downloads are long-lived streams,
	// so they get their own workers rather than starving page fetches.
	DefaultDownloadConcurrency = 20

	// DefaultRateLimit is the shared request-issuance rate in requests
	// per second, across both pools. 0 would mean unlimited.
	DefaultRateLimit = 2.0

	// DefaultRequestTimeout applies to each individual HTTP request,
	// not to the crawl as a whole.
	DefaultRequestTimeout = 20 * time.Second

	// DefaultRetryAttempts is the number of retries on retryable HTTP
	// statuses (429 and the 5xx gateway family).
	DefaultRetryAttempts = 3

	// DefaultRetryBackoff is the exponential backoff factor between
	// retries: factor * 2^(attempt-1) seconds.
	DefaultRetryBackoff = 0.8

	// DefaultUserAgent identifies the crawler in request logs. A
	// descriptive User-Agent lets site operators see who is crawling.
	DefaultUserAgent = "filegrab/1.0 (+https://github.com/nao1215/filegrab)"

	// DefaultMaxBodySize limits how much of an HTML response is read.
	// 5MB is generous for markup while bounding memory per worker.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultStopTimeout bounds how long Stop waits for the driving
	// loop to drain before giving up and persisting what it has.
	DefaultStopTimeout = 5 * time.Second

	// AppName is the application name used for XDG directory paths.
	AppName = "filegrab"
)

// DefaultTargetExtensions is the extension set used when the user picks
// none explicitly: documents, archives, and common image formats.
var DefaultTargetExtensions = []string{
	".pdf", ".zip", ".rar", ".7z", ".tar", ".tar.gz",
	".doc", ".docx", ".docm", ".xls", ".xlsx", ".xlsm", ".csv",
	".ppt", ".pptx", ".pptm", ".txt", ".rtf",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".tif", ".tiff",
}

// DefaultAllowedContentTypes are the response content types treated as
// HTML pages. Anything else is fetched but never parsed for links.
var DefaultAllowedContentTypes = []string{"text/html", "application/xhtml+xml"}

// Config holds every knob for one crawl. It is populated from CLI flags
// and the optional settings file, validated once, and passed through
// the application by dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested
// sub-configs. The option count is manageable, and a flat struct keeps
// flag wiring in cmd/ trivial.
type Config struct {
	// StartURL is the page the crawl begins from. Required.
	StartURL string

	// MaxDepth limits link-following distance from StartURL.
	// 0 means only the start page.
	MaxDepth int

	// Concurrency is the page-fetch worker pool size.
	Concurrency int

	// DownloadConcurrency is the asset-download worker pool size.
	DownloadConcurrency int

	// RateLimit is the shared outbound request rate in requests per
	// second. 0 means unlimited.
	RateLimit float64

	// IncludePatterns, when non-empty, restrict the crawl to URLs
	// matching at least one regular expression.
	IncludePatterns []string

	// ExcludePatterns skip any URL matching one of the expressions.
	// Exclusion wins over inclusion.
	ExcludePatterns []string

	// RespectRobots gates URLs through each host's robots.txt policy.
	RespectRobots bool

	// SameDomainOnly restricts the crawl to the start URL's
	// registrable domain (subdomains included).
	SameDomainOnly bool

	// Resume loads the previous snapshot from StatePath instead of
	// starting a fresh crawl.
	Resume bool

	// TargetExtensions is the set of file extensions to download.
	// Normalized (lowercase, leading dot) by Validate.
	TargetExtensions []string

	// OutputDir is the root directory for downloaded files.
	OutputDir string

	// LogsDir is where the crawl log file is written.
	LogsDir string

	// StatePath is the crawl snapshot file used for persistence and
	// resume.
	StatePath string

	// ReportPath, ManifestPath, and LinksReportPath are the three
	// structured report files written at crawl completion.
	ReportPath      string
	ManifestPath    string
	LinksReportPath string

	// SummaryPath is the human-readable Markdown summary. Empty
	// disables it.
	SummaryPath string

	// UserAgent is sent with every HTTP request.
	UserAgent string

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration

	// RetryAttempts and RetryBackoff control transparent retry on
	// retryable HTTP statuses.
	RetryAttempts int
	RetryBackoff  float64

	// AllowedContentTypes are the response content types parsed as HTML.
	AllowedContentTypes []string

	// MaxBodySize caps how many bytes of an HTML response are read.
	MaxBodySize int64

	// StopTimeout bounds Stop's wait for the driving loop.
	StopTimeout time.Duration

	// DBDir is the directory for the SQLite crawl archive. Empty
	// disables archiving.
	DBDir string

	// Verbose enables debug-level logging.
	Verbose bool
}

// NewConfig returns a Config populated with defaults. Callers override
// individual fields afterwards.
//
// Design decision: A constructor rather than zero values, because most
// defaults are non-zero and the constructor doubles as documentation.
func NewConfig() *Config {
	return &Config{
		MaxDepth:            DefaultMaxDepth,
		Concurrency:         DefaultConcurrency,
		DownloadConcurrency: DefaultDownloadConcurrency,
		RateLimit:           DefaultRateLimit,
		RespectRobots:       true,
		SameDomainOnly:      true,
		TargetExtensions:    append([]string(nil), DefaultTargetExtensions...),
		OutputDir:           "downloads",
		LogsDir:             "logs",
		StatePath:           "crawl_state.json",
		ReportPath:          "report.json",
		ManifestPath:        "downloads_manifest.json",
		LinksReportPath:     "links_by_depth.json",
		SummaryPath:         "summary.md",
		UserAgent:           DefaultUserAgent,
		RequestTimeout:      DefaultRequestTimeout,
		RetryAttempts:       DefaultRetryAttempts,
		RetryBackoff:        DefaultRetryBackoff,
		AllowedContentTypes: append([]string(nil), DefaultAllowedContentTypes...),
		MaxBodySize:         DefaultMaxBodySize,
		StopTimeout:         DefaultStopTimeout,
	}
}

// XDGDataDir returns the XDG data directory for filegrab, used as the
// default location of the crawl archive database.
// On Linux: ~/.local/share/filegrab
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks the configuration and normalizes the extension set.
// It returns the first problem found as a sentinel error; fixing one
// issue often makes the rest irrelevant. Called once after flag
// parsing, before any crawl starts.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}
	if urlutil.Normalize("", c.StartURL) == "" {
		return ErrInvalidStartURL
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Concurrency <= 0 || c.DownloadConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryAttempts < 0 || c.RetryBackoff < 0 {
		return ErrInvalidRetry
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	c.TargetExtensions = urlutil.NormalizeExtensions(c.TargetExtensions)
	if len(c.TargetExtensions) == 0 {
		return ErrNoExtensions
	}
	return nil
}
