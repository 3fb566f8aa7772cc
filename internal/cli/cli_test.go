package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"abstractrag/config"
	"abstractrag/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 10*time.Minute, "2h10m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	lg := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	if lg.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !lg.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestAppLoadsJSONCorpus(t *testing.T) {
	root := t.TempDir()
	rootDir = root
	t.Cleanup(func() { rootDir = "" })

	path := filepath.Join(root, "data", "abstracts.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	corpus := `[
  {"title": "p53", "pubmed_id": "1", "abstract": "p53 tumor suppressor apoptosis"},
  {"title": "Insulin", "pubmed_id": "2", "abstract": "insulin regulates blood glucose"}
]`
	if err := os.WriteFile(path, []byte(corpus), 0644); err != nil {
		t.Fatal(err)
	}

	c := config.DefaultConfig()
	c.Embedding.Provider = "mock"

	a, err := newApp(c, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	n, err := a.load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 documents, got %d", n)
	}

	docs, err := a.retrieve.Retrieve(context.Background(), "blood glucose", 1)
	if err != nil {
		t.Fatal(err)
	}
	if docs[0].Title != "Insulin" {
		t.Errorf("expected Insulin, got %s", docs[0].Title)
	}
}

func TestNewLLMRejectsUnknownProvider(t *testing.T) {
	c := config.DefaultConfig()
	c.Generation.Provider = "nope"
	if _, err := newLLM(c); err == nil {
		t.Error("expected error for unknown provider")
	}

	c.Generation.Provider = "ollama"
	if _, err := newLLM(c); err != nil {
		t.Errorf("ollama needs no key: %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("expected untouched string, got %q", got)
	}

	long := strings.Repeat("β", 600)
	got := truncateRunes(long, abstractPreview)
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != abstractPreview {
		t.Errorf("expected %d runes, got %d", abstractPreview, n)
	}
}

func TestQueryResultsKeepZeroScore(t *testing.T) {
	scored := []domain.ScoredDocument{{
		Document: domain.EmbeddedDocument{
			Text:     "zero-norm abstract",
			Metadata: map[string]string{domain.MetaTitle: "Z", domain.MetaSourceID: "9"},
		},
		Score: 0,
	}}

	data, err := json.Marshal(toQueryResults(scored, true))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"score":0`) {
		t.Errorf("expected zero score in output, got %s", data)
	}

	data, err = json.Marshal(toQueryResults(scored, false))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"score"`) {
		t.Errorf("expected no score without --scores, got %s", data)
	}
}
