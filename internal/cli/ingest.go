package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed the configured source and report the result",
	Long: `Load the configured document source, embed every abstract and build the
vector index. The index lives in memory, so this command is mostly useful to
check provider settings and to warm the embedding cache.

Examples:
  abstractrag ingest
  DATA_PATH=data/other.json abstractrag ingest`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	n, err := a.load(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingestion complete:\n")
	fmt.Printf("  Source:     %s\n", a.source.Name())
	fmt.Printf("  Documents:  %d\n", n)
	fmt.Printf("  Model:      %s (dim %d)\n", a.embedder.ModelName(), a.index.Snapshot().Dimension())
	fmt.Printf("  Duration:   %s\n", formatDuration(time.Since(start)))
	return nil
}
