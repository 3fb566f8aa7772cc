package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"abstractrag/internal/adapter/fs"
	"abstractrag/internal/domain"
)

// JSONFileSource loads abstracts from JSON files matched by glob patterns.
// Each file holds an array of records.
type JSONFileSource struct {
	root   string
	walker *fs.Walker
}

// record accepts both the extractor's field names (pubmed_id, abstract) and
// the generic ones (source_id, text).
type record struct {
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
	PubmedID string `json:"pubmed_id"`
	Text     string `json:"text"`
	Abstract string `json:"abstract"`
}

func NewJSONFileSource(root string, patterns []string) *JSONFileSource {
	return &JSONFileSource{
		root:   root,
		walker: fs.NewWalker(patterns, nil),
	}
}

func (s *JSONFileSource) Name() string {
	return "json"
}

// Load reads every matched file, in path order, and returns its records in
// file order.
func (s *JSONFileSource) Load(ctx context.Context) ([]domain.RawDocument, error) {
	files, err := s.walker.Walk(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no document files found under %s", s.root)
	}

	var docs []domain.RawDocument
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fs.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}

		parsed, err := ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Path, err)
		}
		docs = append(docs, parsed...)
	}

	return docs, nil
}

// ParseJSON decodes an array of abstract records.
func ParseJSON(data []byte) ([]domain.RawDocument, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	docs := make([]domain.RawDocument, 0, len(records))
	for i, r := range records {
		doc := domain.RawDocument{
			Title:    strings.TrimSpace(r.Title),
			SourceID: firstNonEmpty(r.SourceID, r.PubmedID),
			Text:     strings.TrimSpace(firstNonEmpty(r.Text, r.Abstract)),
		}
		if doc.Text == "" {
			return nil, fmt.Errorf("%w: record %d has no text", domain.ErrInvalidInput, i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// exportRecord is the on-disk layout written by MarshalJSON.
type exportRecord struct {
	Title    string `json:"title"`
	PubmedID string `json:"pubmed_id"`
	Abstract string `json:"abstract"`
}

// MarshalJSON encodes docs in the layout ParseJSON reads back.
func MarshalJSON(docs []domain.RawDocument) ([]byte, error) {
	records := make([]exportRecord, len(docs))
	for i, d := range docs {
		records[i] = exportRecord{Title: d.Title, PubmedID: d.SourceID, Abstract: d.Text}
	}
	return json.MarshalIndent(records, "", "  ")
}
