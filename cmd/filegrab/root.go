package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for filegrab.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filegrab",
		Short: "Polite, resumable file-downloading web crawler",
		Long: `filegrab crawls a site breadth-first from a start URL and downloads
every file whose extension matches the configured set. Each unique file
URL is fetched at most once per crawl; pages that reference the same
file share the downloaded copy.

Crawl state persists after every completed task, so an interrupted
crawl resumes with --resume instead of starting over.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
