package cli

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"abstractrag/internal/domain"
	"github.com/spf13/cobra"
)

var (
	queryText   string
	queryTopK   int
	queryJSON   bool
	queryScores bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the abstracts closest to a query",
	Long: `Ingest the configured source and print the documents most similar to the
query, without calling the LLM.

Examples:
  abstractrag query -q "tumor suppressor genes"
  abstractrag query -q "insulin resistance" --top-k 3 --scores`,
	RunE: runQuery,
}

type queryResult struct {
	Title    string   `json:"title"`
	SourceID string   `json:"source_id"`
	Abstract string   `json:"abstract"`
	Score    *float64 `json:"score,omitempty"`
}

// abstractPreview is the number of characters of an abstract shown in text output.
const abstractPreview = 500

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryScores, "scores", false, "include similarity scores")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
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
		topK = queryTopK
	}

	scored, err := a.retrieve.RetrieveScored(ctx, queryText, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := toQueryResults(scored, queryScores)

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		if r.Score != nil {
			fmt.Printf("--- [%d] %s (PMID %s, score: %.4f) ---\n", i+1, r.Title, r.SourceID, *r.Score)
		} else {
			fmt.Printf("--- [%d] %s (PMID %s) ---\n", i+1, r.Title, r.SourceID)
		}
		fmt.Println(truncateRunes(r.Abstract, abstractPreview))
		fmt.Println()
	}
	return nil
}

// toQueryResults flattens scored documents. Scores are set only when requested,
// so a genuine score of 0 still appears in the output.
func toQueryResults(scored []domain.ScoredDocument, withScores bool) []queryResult {
	results := make([]queryResult, len(scored))
	for i, s := range scored {
		doc := s.Document.View()
		results[i] = queryResult{Title: doc.Title, SourceID: doc.SourceID, Abstract: doc.Abstract}
		if withScores {
			score := s.Score
			results[i].Score = &score
		}
	}
	return results
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
