package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"abstractrag/internal/adapter/cache"
	"abstractrag/internal/adapter/memstore"
	"abstractrag/internal/domain"
	"abstractrag/internal/port"
)

// IngestUseCase embeds raw documents and installs them as a new index generation.
type IngestUseCase struct {
	mu       sync.Mutex // one ingestion at a time
	embedder port.Embedder
	index    *memstore.VectorIndex
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// NewIngestUseCase creates a new ingest use case. queryCache may be nil.
func NewIngestUseCase(
	embedder port.Embedder,
	index *memstore.VectorIndex,
	queryCache *cache.QueryCache,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		embedder: embedder,
		index:    index,
		cache:    queryCache,
		logger:   logger,
	}
}

// Ingest embeds raw in one batch and replaces the index with the result.
// Any failure before the swap leaves the current generation untouched.
func (u *IngestUseCase) Ingest(ctx context.Context, raw []domain.RawDocument) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: no documents to ingest", domain.ErrInvalidInput)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	u.logger.Info("ingesting documents", "count", len(raw), "model", u.embedder.ModelName())

	texts := make([]string, len(raw))
	for i, doc := range raw {
		texts[i] = doc.Text
	}

	embeddings, err := u.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		u.logger.Error("embedding generation failed", "error", err)
		if errors.Is(err, domain.ErrEmbeddingProvider) {
			return 0, fmt.Errorf("failed to embed documents: %w", err)
		}
		return 0, fmt.Errorf("failed to embed documents: %w: %w", domain.ErrEmbeddingProvider, err)
	}
	if len(embeddings) != len(raw) {
		return 0, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingProvider, len(raw), len(embeddings))
	}

	docs := make([]domain.EmbeddedDocument, len(raw))
	for i, doc := range raw {
		docs[i] = domain.EmbeddedDocument{
			ID:        fmt.Sprintf("doc%d", i),
			Embedding: embeddings[i],
			Text:      doc.Text,
			Metadata: map[string]string{
				domain.MetaTitle:    doc.Title,
				domain.MetaSourceID: doc.SourceID,
			},
		}
	}

	n, err := u.index.ReplaceAll(docs)
	if err != nil {
		return 0, fmt.Errorf("failed to replace index: %w", err)
	}

	if u.cache != nil {
		u.cache.Invalidate()
	}

	u.logger.Info("documents ingested",
		"count", n,
		"generation", u.index.Generation(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return n, nil
}

// IngestFromSource loads documents from src and ingests them.
func (u *IngestUseCase) IngestFromSource(ctx context.Context, src port.DocumentSource) (int, error) {
	raw, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load documents from %s source: %w", src.Name(), err)
	}
	return u.Ingest(ctx, raw)
}
