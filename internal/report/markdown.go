package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/nao1215/filegrab/internal/state"
)

// WriteMarkdownSummary renders the summary as a human-readable
// Markdown document and writes it atomically.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
func WriteMarkdownSummary(path string, summary *Summary) error {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	writeMarkdownHeader(md, summary)
	writeMarkdownPages(md, summary)
	writeMarkdownSkips(md, summary)

	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown summary: %w", err)
	}
	if err := state.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write markdown summary %s: %w", path, err)
	}
	return nil
}

// writeMarkdownHeader writes the title and the crawl overview table.
func writeMarkdownHeader(md *markdown.Markdown, summary *Summary) {
	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + summary.StartURL + "`"},
			{"Max Depth", strconv.Itoa(summary.MaxDepth)},
			{"Duration", fmt.Sprintf("%.1fs", summary.Duration)},
			{"Pages Visited", strconv.Itoa(summary.PagesVisited)},
			{"Files Downloaded", strconv.Itoa(summary.AssetCount)},
			{"Links Skipped", strconv.Itoa(len(summary.Skipped))},
		},
	})
	md.PlainText("")
}

// writeMarkdownPages writes one table row per visited page, sorted by
// URL for a stable document.
func writeMarkdownPages(md *markdown.Markdown, summary *Summary) {
	md.H2("Pages")
	md.PlainText("")

	urls := make([]string, 0, len(summary.Pages))
	for url := range summary.Pages {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	rows := make([][]string, 0, len(urls))
	for _, url := range urls {
		page := summary.Pages[url]
		rows = append(rows, []string{
			"`" + url + "`",
			strconv.Itoa(page.Depth),
			strconv.Itoa(len(page.Assets)),
			strconv.Itoa(len(page.Errors)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Files", "Errors"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeMarkdownSkips aggregates skipped links by reason.
func writeMarkdownSkips(md *markdown.Markdown, summary *Summary) {
	if len(summary.Skipped) == 0 {
		return
	}
	md.H2("Skipped Links")
	md.PlainText("")

	counts := make(map[string]int)
	for _, skip := range summary.Skipped {
		counts[skip.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	rows := make([][]string, 0, len(reasons))
	for _, reason := range reasons {
		rows = append(rows, []string{reason, strconv.Itoa(counts[reason])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Reason", "Count"},
		Rows:   rows,
	})
}
