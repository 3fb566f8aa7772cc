package domain

// Metadata keys every EmbeddedDocument carries.
const (
	MetaTitle    = "title"
	MetaSourceID = "source_id"
)

// RawDocument is a document as produced by a source, before embedding.
type RawDocument struct {
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// EmbeddedDocument is a document stored in the vector index.
type EmbeddedDocument struct {
	ID        string
	Embedding []float32
	Text      string
	Metadata  map[string]string
}

// Document is the result-facing view of an EmbeddedDocument.
type Document struct {
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
	Abstract string `json:"abstract"`
}

type ScoredDocument struct {
	Document EmbeddedDocument
	Score    float64
}

// Answer is a generated answer together with the documents it was grounded on.
type Answer struct {
	Text    string     `json:"answer"`
	Context []Document `json:"context"`
}

// Placeholders shown when a document carries no title or source id.
const (
	UntitledTitle   = "Untitled"
	UnknownSourceID = "unknown"
)

// View projects an EmbeddedDocument to its result-facing Document.
func (d EmbeddedDocument) View() Document {
	title := d.Metadata[MetaTitle]
	if title == "" {
		title = UntitledTitle
	}
	sourceID := d.Metadata[MetaSourceID]
	if sourceID == "" {
		sourceID = UnknownSourceID
	}
	return Document{
		Title:    title,
		SourceID: sourceID,
		Abstract: d.Text,
	}
}
