package cli

import (
	"fmt"

	"abstractrag/internal/usecase"
	"github.com/spf13/cobra"
)

var (
	promptQuery string
	promptTopK  int
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the question-answering prompt without calling the LLM",
	Long: `Ingest the configured source, retrieve context for the question and print
the prompt that would be sent to the LLM. Useful for manual orchestration.

Examples:
  abstractrag prompt -q "What is the role of p53?"
  abstractrag prompt -q "How is insulin secreted?" -k 3 | pbcopy`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of context documents (default from config)")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if _, err := a.load(ctx); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	topK := cfg.Retrieve.TopK
	if cmd.Flags().Changed("top-k") {
		topK = promptTopK
	}

	docs, err := a.retrieve.Retrieve(ctx, promptQuery, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	prompt, err := usecase.BuildPrompt(promptQuery, docs)
	if err != nil {
		return err
	}
	fmt.Print(prompt)
	return nil
}
