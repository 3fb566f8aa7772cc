package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"abstractrag/internal/adapter/cache"
	"abstractrag/internal/adapter/memstore"
	"abstractrag/internal/domain"
	"abstractrag/internal/port"
)

// DefaultTopK is the number of documents retrieved when the caller does not say.
const DefaultTopK = 1

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	embedder port.Embedder
	index    *memstore.VectorIndex
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case. queryCache may be nil.
func NewRetrieveUseCase(
	embedder port.Embedder,
	index *memstore.VectorIndex,
	queryCache *cache.QueryCache,
	logger *slog.Logger,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		embedder: embedder,
		index:    index,
		cache:    queryCache,
		logger:   logger,
	}
}

// Retrieve returns the k documents closest to query.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int) ([]domain.Document, error) {
	scored, err := u.RetrieveScored(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document.View()
	}
	return docs, nil
}

// RetrieveScored is Retrieve with similarity scores kept.
// The whole lookup runs against a single index snapshot.
func (u *RetrieveUseCase) RetrieveScored(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be a positive integer, got %d", domain.ErrInvalidInput, topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}

	snap := u.index.Snapshot()
	if snap == nil {
		return nil, domain.ErrEmptyIndex
	}

	if u.cache != nil {
		if results, hit := u.cache.Get(query, topK, snap.Generation()); hit {
			u.logger.Debug("query cache hit", "top_k", topK, "generation", snap.Generation())
			return results, nil
		}
	}

	vec, err := port.EmbedOne(ctx, u.embedder, query)
	if err != nil {
		u.logger.Error("query embedding failed", "error", err)
		if errors.Is(err, domain.ErrEmbeddingProvider) {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		return nil, fmt.Errorf("failed to embed query: %w: %w", domain.ErrEmbeddingProvider, err)
	}

	results, err := snap.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	if u.cache != nil {
		u.cache.Put(query, topK, snap.Generation(), results)
	}

	u.logger.Info("documents retrieved", "count", len(results), "top_k", topK, "generation", snap.Generation())
	return results, nil
}
