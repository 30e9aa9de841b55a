package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var (
		urls []string
		file string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one batch over story URLs and print its report",
		Long: `Runs the batch pipeline in the foreground: for every story URL the story
is saved, its chapter list is reconciled against the store and each missing
chapter is downloaded and saved. The JSON report is written to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				fromFile, err := readURLFile(file)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			return runCrawl(cmd, urls)
		},
	}
	cmd.Flags().StringArrayVar(&urls, "url", nil, "story URL (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "file with one story URL per line")
	return cmd
}

func runCrawl(cmd *cobra.Command, urls []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, runErr := a.Orchestrator.Run(cmd.Context(), urls)
	if report.RunID != "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run batch: %w", runErr)
	}
	if report.Status == crawler.JobStatusFailed {
		return fmt.Errorf("batch %s failed", report.RunID)
	}
	return nil
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return parseURLList(f)
}

// parseURLList reads one URL per line, skipping blanks and # comments.
func parseURLList(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}
