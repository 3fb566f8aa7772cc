package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"abstractrag/internal/domain"
)

type countingEmbedder struct {
	calls  int
	inputs [][]string
	fail   bool
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.inputs = append(e.inputs, texts)
	if e.fail {
		return nil, domain.ErrEmbeddingProvider
	}
	if len(texts) == 0 {
		return nil, domain.ErrInvalidInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestEmbeddingCacheHitsAndMisses(t *testing.T) {
	inner := &countingEmbedder{}
	cache, err := NewEmbeddingCache(filepath.Join(t.TempDir(), "cache.db"), inner)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, err := cache.EmbedBatch(ctx, []string{"a", "bb"}); err != nil {
		t.Fatal(err)
	}

	vecs, err := cache.EmbedBatch(ctx, []string{"bb", "ccc", "a"})
	if err != nil {
		t.Fatal(err)
	}

	if inner.calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", inner.calls)
	}
	if len(inner.inputs[1]) != 1 || inner.inputs[1][0] != "ccc" {
		t.Errorf("expected only the miss to be embedded, got %v", inner.inputs[1])
	}
	for i, want := range []float32{2, 3, 1} {
		if vecs[i][0] != want {
			t.Errorf("vector %d: expected %v, got %v", i, want, vecs[i][0])
		}
	}

	n, err := cache.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 cached embeddings, got %d", n)
	}

	if _, err := cache.EmbedBatch(ctx, []string{"a", "bb", "ccc"}); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("expected fully cached batch to skip the embedder, got %d calls", inner.calls)
	}
}

func TestEmbeddingCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	first := &countingEmbedder{}
	cache, err := NewEmbeddingCache(path, first)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.EmbedBatch(context.Background(), []string{"abstract"}); err != nil {
		t.Fatal(err)
	}
	cache.Close()

	second := &countingEmbedder{}
	cache, err = NewEmbeddingCache(path, second)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if _, err := cache.EmbedBatch(context.Background(), []string{"abstract"}); err != nil {
		t.Fatal(err)
	}
	if second.calls != 0 {
		t.Errorf("expected cached embedding after reopen, got %d calls", second.calls)
	}
}

func TestEmbeddingCachePropagatesErrors(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cache, err := NewEmbeddingCache(filepath.Join(t.TempDir(), "cache.db"), inner)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	if _, err := cache.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
	if n, _ := cache.Count(); n != 0 {
		t.Errorf("expected nothing cached after failure, got %d", n)
	}

	inner.fail = false
	if _, err := cache.EmbedBatch(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty batch, got %v", err)
	}
}
