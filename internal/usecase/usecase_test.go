package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"abstractrag/internal/adapter/cache"
	"abstractrag/internal/adapter/embedding"
	"abstractrag/internal/adapter/memstore"
	"abstractrag/internal/domain"
)

// fixedEmbedder returns hand-picked vectors per text.
type fixedEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    error
	calls   int
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	if len(texts) == 0 {
		return nil, domain.ErrInvalidInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("%w: unknown text %q", domain.ErrEmbeddingProvider, t)
		}
		out[i] = v
	}
	return out, nil
}

func (e *fixedEmbedder) Dimension() int    { return 2 }
func (e *fixedEmbedder) ModelName() string { return "fixed" }

type fakeLLM struct {
	prompt string
	answer string
	err    error
}

func (l *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.prompt = prompt
	return l.answer, l.err
}

func (l *fakeLLM) ModelName() string { return "fake" }

var corpus = []domain.RawDocument{
	{Title: "A", SourceID: "111", Text: "abstract about insulin"},
	{Title: "B", SourceID: "222", Text: "abstract about p53"},
	{Title: "C", SourceID: "333", Text: "abstract about ribosomes"},
}

func newEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vectors: map[string][]float32{
		"abstract about insulin":   {1, 0},
		"abstract about p53":       {0.6, 0.8},
		"abstract about ribosomes": {-1, 0},
		"X":                        {0, 1},
		"Y":                        {1, 0.1},
	}}
}

type fixture struct {
	embedder *fixedEmbedder
	index    *memstore.VectorIndex
	cache    *cache.QueryCache
	ingest   *IngestUseCase
	retrieve *RetrieveUseCase
}

func newFixture(withCache bool) *fixture {
	f := &fixture{embedder: newEmbedder(), index: memstore.NewVectorIndex()}
	if withCache {
		f.cache = cache.NewQueryCache(16, time.Minute)
	}
	f.ingest = NewIngestUseCase(f.embedder, f.index, f.cache, nil)
	f.retrieve = NewRetrieveUseCase(f.embedder, f.index, f.cache, nil)
	return f
}

func TestRetrieveEndToEnd(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	n, err := f.ingest.Ingest(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 documents ingested, got %d", n)
	}

	docs, err := f.retrieve.Retrieve(ctx, "X", 1)
	if err != nil {
		t.Fatal(err)
	}

	want := []domain.Document{{Title: "B", SourceID: "222", Abstract: "abstract about p53"}}
	if !reflect.DeepEqual(docs, want) {
		t.Errorf("expected %+v, got %+v", want, docs)
	}
}

func TestRetrieveBeforeIngest(t *testing.T) {
	f := newFixture(false)

	_, err := f.retrieve.Retrieve(context.Background(), "X", 1)
	if !errors.Is(err, domain.ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
	if f.embedder.calls != 0 {
		t.Errorf("expected no embedding call on an empty index, got %d", f.embedder.calls)
	}
}

func TestRetrieveRejectsBadArguments(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	calls := f.embedder.calls

	for _, k := range []int{0, -1} {
		if _, err := f.retrieve.Retrieve(ctx, "X", k); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("k=%d: expected ErrInvalidInput, got %v", k, err)
		}
	}
	if _, err := f.retrieve.Retrieve(ctx, "   ", 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty query: expected ErrInvalidInput, got %v", err)
	}
	if f.embedder.calls != calls {
		t.Errorf("expected invalid arguments to be rejected before embedding")
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	f.embedder.fail = errors.New("connection reset")
	_, err := f.retrieve.Retrieve(ctx, "X", 1)
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestRetrieveKLargerThanCorpus(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	docs, err := f.retrieve.Retrieve(ctx, "Y", 10)
	if err != nil {
		t.Fatal(err)
	}
	var titles []string
	for _, d := range docs {
		titles = append(titles, d.Title)
	}
	if got := strings.Join(titles, ","); got != "A,B,C" {
		t.Errorf("expected A,B,C, got %s", got)
	}
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	f := newFixture(false)
	if _, err := f.ingest.Ingest(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if f.embedder.calls != 0 {
		t.Errorf("expected no embedding call, got %d", f.embedder.calls)
	}
}

func TestIngestBlankAbstractIsProviderError(t *testing.T) {
	index := memstore.NewVectorIndex()
	ingest := NewIngestUseCase(embedding.NewMockEmbedder(8), index, nil, nil)

	_, err := ingest.Ingest(context.Background(), []domain.RawDocument{{Title: "A", SourceID: "1", Text: "   "}})
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected provider's ErrInvalidInput to be kept, got %v", err)
	}
	if index.Len() != 0 {
		t.Errorf("expected empty index, got %d documents", index.Len())
	}
}

func TestIngestFailureKeepsPreviousGeneration(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	before := f.index.Snapshot()
	beforeResults, err := f.retrieve.RetrieveScored(ctx, "Y", 3)
	if err != nil {
		t.Fatal(err)
	}

	f.embedder.fail = errors.New("quota exceeded")
	_, err = f.ingest.Ingest(ctx, []domain.RawDocument{{Title: "D", SourceID: "444", Text: "new"}})
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}

	if f.index.Snapshot() != before {
		t.Fatal("index generation changed after failed ingestion")
	}

	f.embedder.fail = nil
	afterResults, err := f.retrieve.RetrieveScored(ctx, "Y", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(beforeResults, afterResults) {
		t.Errorf("results changed after failed ingestion:\nbefore %+v\nafter  %+v", beforeResults, afterResults)
	}
}

func TestIngestCountMismatch(t *testing.T) {
	f := newFixture(false)
	short := &shortEmbedder{}
	ingest := NewIngestUseCase(short, f.index, nil, nil)

	_, err := ingest.Ingest(context.Background(), corpus)
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
	if f.index.Len() != 0 {
		t.Errorf("expected empty index, got %d documents", f.index.Len())
	}
}

type shortEmbedder struct{}

func (shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1, 0}}, nil
}
func (shortEmbedder) Dimension() int    { return 2 }
func (shortEmbedder) ModelName() string { return "short" }

func TestIngestIdempotent(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	first, err := f.retrieve.RetrieveScored(ctx, "Y", 3)
	if err != nil {
		t.Fatal(err)
	}
	firstGen := f.index.Generation()

	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	second, err := f.retrieve.RetrieveScored(ctx, "Y", 3)
	if err != nil {
		t.Fatal(err)
	}

	if f.index.Generation() == firstGen {
		t.Error("expected a new generation after re-ingestion")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-ingestion changed results:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestIngestAssignsIDsAndMetadata(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	results, err := f.index.Search([]float32{-1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := results[0].Document
	if got.ID != "doc2" || got.Metadata[domain.MetaTitle] != "C" || got.Metadata[domain.MetaSourceID] != "333" {
		t.Errorf("unexpected document %+v", got)
	}
}

func TestRetrieveCacheInvalidatedByIngest(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	if _, err := f.retrieve.Retrieve(ctx, "X", 1); err != nil {
		t.Fatal(err)
	}
	calls := f.embedder.calls
	if _, err := f.retrieve.Retrieve(ctx, "X", 1); err != nil {
		t.Fatal(err)
	}
	if f.embedder.calls != calls {
		t.Errorf("expected cached retrieval to skip embedding")
	}

	// Swap B's vector away from X; the cached answer must not survive.
	f.embedder.vectors["abstract about p53"] = []float32{1, -1}
	f.embedder.vectors["abstract about ribosomes"] = []float32{0.1, 1}
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	if f.cache.Size() != 0 {
		t.Errorf("expected cache to be purged after ingestion, got %d entries", f.cache.Size())
	}

	docs, err := f.retrieve.Retrieve(ctx, "X", 1)
	if err != nil {
		t.Fatal(err)
	}
	if docs[0].Title != "C" {
		t.Errorf("expected C after re-ingestion, got %s", docs[0].Title)
	}
}

func TestConcurrentRetrieveAndIngest(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				docs, err := f.retrieve.Retrieve(ctx, "X", 1)
				if err != nil {
					t.Error(err)
					return
				}
				if docs[0].Title != "B" {
					t.Errorf("expected B, got %s", docs[0].Title)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if f.index.Generation() != 11 {
		t.Errorf("expected 11 generations, got %d", f.index.Generation())
	}
}

func TestAnswer(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}

	llm := &fakeLLM{answer: "  B explains it.\n"}
	answer, err := NewAnswerUseCase(f.retrieve, llm, nil).Answer(ctx, "X", 1)
	if err != nil {
		t.Fatal(err)
	}

	if answer.Text != "B explains it." {
		t.Errorf("unexpected answer %q", answer.Text)
	}
	if len(answer.Context) != 1 || answer.Context[0].Title != "B" {
		t.Errorf("unexpected context %+v", answer.Context)
	}
	if !strings.Contains(llm.prompt, "Title: B\nAbstract: abstract about p53") {
		t.Errorf("prompt missing context:\n%s", llm.prompt)
	}
	if !strings.Contains(llm.prompt, "Question: X\nAnswer:") {
		t.Errorf("prompt missing question:\n%s", llm.prompt)
	}
}

func TestAnswerErrors(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	llm := &fakeLLM{answer: "unused"}
	uc := NewAnswerUseCase(f.retrieve, llm, nil)
	if _, err := uc.Answer(ctx, "X", 1); !errors.Is(err, domain.ErrEmptyIndex) {
		t.Errorf("expected ErrEmptyIndex, got %v", err)
	}
	if llm.prompt != "" {
		t.Error("LLM must not be called without context")
	}

	if _, err := f.ingest.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	llm.err = errors.New("model overloaded")
	if _, err := uc.Answer(ctx, "X", 1); !errors.Is(err, domain.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt("What is p53?", []domain.Document{
		{Title: "A", Abstract: "first"},
		{Title: "B", Abstract: "second"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "Context:\nTitle: A\nAbstract: first\n\nTitle: B\nAbstract: second\n\nQuestion: What is p53?\nAnswer:"
	if !strings.Contains(prompt, want) {
		t.Errorf("unexpected prompt:\n%s", prompt)
	}
}
