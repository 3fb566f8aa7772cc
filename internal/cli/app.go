package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"abstractrag/config"
	"abstractrag/internal/adapter/cache"
	"abstractrag/internal/adapter/embedding"
	"abstractrag/internal/adapter/llm"
	"abstractrag/internal/adapter/memstore"
	"abstractrag/internal/adapter/source"
	"abstractrag/internal/adapter/store"
	"abstractrag/internal/port"
	"abstractrag/internal/usecase"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	index    *memstore.VectorIndex
	embedder port.Embedder
	source   port.DocumentSource
	ingest   *usecase.IngestUseCase
	retrieve *usecase.RetrieveUseCase

	closers []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		index:  memstore.NewVectorIndex(),
	}

	embedder, err := a.newEmbedder()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder

	src, err := newSource(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source = src

	var queryCache *cache.QueryCache
	if cfg.Retrieve.CacheSize > 0 {
		queryCache = cache.NewQueryCache(cfg.Retrieve.CacheSize, 10*time.Minute)
	}

	a.ingest = usecase.NewIngestUseCase(a.embedder, a.index, queryCache, logger)
	a.retrieve = usecase.NewRetrieveUseCase(a.embedder, a.index, queryCache, logger)
	return a, nil
}

// newEmbedder builds the configured provider, wrapped in the bbolt cache
// when cache_path is set.
func (a *app) newEmbedder() (port.Embedder, error) {
	ec := a.cfg.Embedding
	opts := embedding.Options{
		BaseURL:   ec.BaseURL,
		APIKeyEnv: ec.APIKeyEnv,
		Model:     ec.Model,
		Dimension: ec.Dimension,
		BatchSize: ec.BatchSize,
		Timeout:   config.Seconds(ec.TimeoutSecs),
	}

	var inner port.Embedder
	var err error
	switch ec.Provider {
	case "openai":
		inner, err = embedding.NewOpenAIEmbedder(opts)
	case "ollama":
		inner, err = embedding.NewOllamaEmbedder(opts)
	case "mock":
		inner = embedding.NewMockEmbedder(ec.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if ec.CachePath == "" || ec.Provider == "mock" {
		return inner, nil
	}

	path := resolvePath(ec.CachePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	cached, err := store.NewEmbeddingCache(path, inner)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cached.Close)

	if n, err := cached.Count(); err == nil {
		a.logger.Debug("embedding cache opened", "path", path, "entries", n)
	}
	return cached, nil
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	gc := cfg.Generation
	opts := llm.Options{
		BaseURL:     gc.BaseURL,
		APIKeyEnv:   gc.APIKeyEnv,
		Model:       gc.Model,
		Temperature: gc.Temperature,
		MaxTokens:   gc.MaxTokens,
		Timeout:     config.Seconds(gc.TimeoutSecs),
	}

	switch gc.Provider {
	case "openai":
	case "ollama":
		if opts.BaseURL == "" {
			opts.BaseURL = "http://localhost:11434/v1"
		}
		opts.APIKeyEnv = ""
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", gc.Provider)
	}

	client, err := llm.NewOpenAIClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

func newSource(cfg *config.Config, logger *slog.Logger) (port.DocumentSource, error) {
	sc := cfg.Source
	switch sc.Type {
	case "json":
		return source.NewJSONFileSource(GetRootDir(), sc.Paths), nil
	case "pubmed":
		return source.NewPubMedSource(pubMedOptions(sc.PubMed, sc.PubMed.IDs), logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sc.Type)
	}
}

func pubMedOptions(pc config.PubMedConfig, ids []string) source.PubMedOptions {
	return source.PubMedOptions{
		IDs:         ids,
		BaseURL:     pc.BaseURL,
		Email:       pc.Email,
		Tool:        pc.Tool,
		Concurrency: pc.Concurrency,
		Timeout:     config.Seconds(pc.TimeoutSecs),
	}
}

// load ingests the configured source so one-shot commands have an index to
// search. Cached embeddings make repeated runs cheap.
func (a *app) load(ctx context.Context) (int, error) {
	return a.ingest.IngestFromSource(ctx, a.source)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
