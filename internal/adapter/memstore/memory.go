package memstore

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"abstractrag/internal/domain"
)

// VectorIndex holds the current generation of embedded documents in memory.
// Readers load an immutable Snapshot; ReplaceAll swaps in a new one atomically.
type VectorIndex struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
	gen     uint64
}

// Snapshot is one complete, read-only generation of the index.
type Snapshot struct {
	generation uint64
	dimension  int
	docs       []domain.EmbeddedDocument
	norms      []float64
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// ReplaceAll swaps the entire contents of the index with docs and returns
// the number of documents now indexed. On error the previous generation
// stays in place.
func (x *VectorIndex) ReplaceAll(docs []domain.EmbeddedDocument) (int, error) {
	if len(docs) == 0 {
		return 0, fmt.Errorf("%w: no documents to index", domain.ErrInvalidInput)
	}

	dim := len(docs[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: document %q has an empty embedding", domain.ErrInvalidInput, docs[0].ID)
	}

	snap := &Snapshot{
		dimension: dim,
		docs:      make([]domain.EmbeddedDocument, len(docs)),
		norms:     make([]float64, len(docs)),
	}
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) != dim {
			return 0, fmt.Errorf("%w: document %q has dimension %d, expected %d",
				domain.ErrInvalidInput, doc.ID, len(doc.Embedding), dim)
		}
		if _, dup := seen[doc.ID]; dup {
			return 0, fmt.Errorf("%w: duplicate document id %q", domain.ErrInvalidInput, doc.ID)
		}
		seen[doc.ID] = struct{}{}

		snap.docs[i] = cloneDocument(doc)
		snap.norms[i] = norm(doc.Embedding)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.gen++
	snap.generation = x.gen
	x.current.Store(snap)

	return len(snap.docs), nil
}

// Snapshot returns the current generation, or nil if nothing was ever indexed.
func (x *VectorIndex) Snapshot() *Snapshot {
	return x.current.Load()
}

// Search runs a k-NN query against the current generation.
func (x *VectorIndex) Search(query []float32, k int) ([]domain.ScoredDocument, error) {
	return x.Snapshot().Search(query, k)
}

// Len returns the number of documents in the current generation.
func (x *VectorIndex) Len() int {
	return x.Snapshot().Len()
}

// Generation returns the number of the current generation (0 when empty).
func (x *VectorIndex) Generation() uint64 {
	return x.Snapshot().Generation()
}

func (s *Snapshot) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.generation
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.docs)
}

func (s *Snapshot) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dimension
}

// Search returns up to k documents ordered by descending cosine similarity
// to query. Equal scores keep insertion order.
func (s *Snapshot) Search(query []float32, k int) ([]domain.ScoredDocument, error) {
	if s == nil || len(s.docs) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d",
			domain.ErrInvalidInput, s.dimension, len(query))
	}
	if len(s.norms) != len(s.docs) {
		return nil, fmt.Errorf("%w: snapshot holds %d norms for %d documents",
			domain.ErrIndex, len(s.norms), len(s.docs))
	}

	type scored struct {
		idx   int
		score float64
	}

	qn := norm(query)
	scores := make([]scored, len(s.docs))
	for i := range s.docs {
		if len(s.docs[i].Embedding) != s.dimension {
			return nil, fmt.Errorf("%w: document %q has dimension %d in a %d-dimensional snapshot",
				domain.ErrIndex, s.docs[i].ID, len(s.docs[i].Embedding), s.dimension)
		}
		scores[i] = scored{
			idx:   i,
			score: cosineWithNorms(query, s.docs[i].Embedding, qn, s.norms[i]),
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredDocument, k)
	for i := 0; i < k; i++ {
		results[i] = domain.ScoredDocument{
			Document: s.docs[scores[i].idx],
			Score:    scores[i].score,
		}
	}
	return results, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// A zero-norm vector on either side yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosineWithNorms(a, b, norm(a), norm(b))
}

func cosineWithNorms(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot(a, b) / (normA * normB)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }

func cloneDocument(doc domain.EmbeddedDocument) domain.EmbeddedDocument {
	out := domain.EmbeddedDocument{
		ID:        doc.ID,
		Embedding: append([]float32(nil), doc.Embedding...),
		Text:      doc.Text,
		Metadata:  make(map[string]string, len(doc.Metadata)),
	}
	for k, v := range doc.Metadata {
		out.Metadata[k] = v
	}
	return out
}
