// Package database provides the SQLite crawl archive.
//
// This package implements the CrawlDB, which stores:
//   - Crawl runs with their start URL and lifetime
//   - Page fetches with depth, title, and status
//   - Asset downloads with their source page and on-disk path
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of
// other databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
