package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"abstractrag/internal/adapter/source"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	fetchIDs []string
	fetchOut string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download PubMed abstracts into a JSON corpus",
	Long: `Fetch titles and abstracts for the given PubMed IDs from NCBI E-utilities
and write them as a JSON array that the json source can ingest. IDs that fail
are reported and skipped.

Examples:
  abstractrag fetch                                   # IDs from source.pubmed.ids
  abstractrag fetch --ids 15858239,20598273 -o data/abstracts.json`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringSliceVar(&fetchIDs, "ids", nil, "comma-separated PubMed IDs (default from config)")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "data/abstracts.json", "output file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ids := fetchIDs
	if len(ids) == 0 {
		ids = cfg.Source.PubMed.IDs
	}
	if len(ids) == 0 {
		return fmt.Errorf("no PubMed IDs given. Use --ids or set source.pubmed.ids")
	}

	src := source.NewPubMedSource(pubMedOptions(cfg.Source.PubMed, ids), logger)

	var barMu sync.Mutex
	startTime := time.Now()
	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("[cyan]Fetching[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	src.Progress = func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		bar.Set(done)
		elapsed := time.Since(startTime)
		rate := float64(done) / elapsed.Seconds()
		if rate > 0 {
			eta := time.Duration(float64(total-done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Fetching[reset] ETA: %s", formatDuration(eta)))
		}
	}

	docs, err := src.Load(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	data, err := source.MarshalJSON(docs)
	if err != nil {
		return fmt.Errorf("failed to encode abstracts: %w", err)
	}

	out := resolvePath(fetchOut)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Saved %d of %d abstracts to %s\n", len(docs), len(ids), out)
	return nil
}

// formatDuration formats a duration for human display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
