package cli

import (
	"encoding/json"
	"fmt"

	"abstractrag/internal/usecase"
	"github.com/spf13/cobra"
)

var (
	askQuery string
	askTopK  int
	askJSON  bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question using the closest abstracts as context",
	Long: `Ingest the configured source, retrieve the closest abstracts and ask the
configured LLM to answer from them.

Examples:
  abstractrag ask -q "What is the role of p53 in apoptosis?"
  abstractrag ask -q "How is insulin secreted?" -k 3 --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of context documents (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := newLLM(cfg)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if _, err := a.load(ctx); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	topK := cfg.Retrieve.TopK
	if cmd.Flags().Changed("top-k") {
		topK = askTopK
	}

	answer, err := usecase.NewAnswerUseCase(a.retrieve, gen, logger).Answer(ctx, askQuery, topK)
	if err != nil {
		return err
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	fmt.Println()
	fmt.Println("Sources:")
	for _, d := range answer.Context {
		fmt.Printf("  - %s (PMID %s)\n", d.Title, d.SourceID)
	}
	return nil
}
