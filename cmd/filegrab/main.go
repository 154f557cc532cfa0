// Package main provides the entry point for the filegrab CLI.
//
// filegrab is a polite, resumable web crawler that walks a site
// breadth-first and downloads files matching configured extensions
// exactly once.
//
// Usage:
//
//	filegrab crawl https://example.org/docs
//	filegrab crawl --resume https://example.org/docs
//
// See --help for all available options.
package main

// main is the entry point for filegrab.
func main() {
	Execute()
}
