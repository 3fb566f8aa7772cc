package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"abstractrag/internal/domain"
	"abstractrag/internal/port"
	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// EmbeddingCache wraps an Embedder with a BoltDB-backed cache keyed by
// model and text. Only vectors are cached; the vector index itself is
// always rebuilt in memory.
type EmbeddingCache struct {
	db    *bbolt.DB
	inner port.Embedder
}

type storedEmbedding struct {
	Model  string    `json:"m"`
	Vector []float32 `json:"v"`
}

func NewEmbeddingCache(path string, inner port.Embedder) (*EmbeddingCache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embeddings bucket: %w", err)
	}

	return &EmbeddingCache{db: db, inner: inner}, nil
}

// EmbedBatch returns cached vectors where available and embeds the rest in
// a single call to the wrapped embedder.
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, text := range texts {
			data := b.Get(c.key(text))
			if data == nil {
				missTexts = append(missTexts, text)
				missIdx = append(missIdx, i)
				continue
			}
			var stored storedEmbedding
			if err := json.Unmarshal(data, &stored); err != nil || len(stored.Vector) == 0 {
				// Corrupted entries are re-embedded.
				missTexts = append(missTexts, text)
				missIdx = append(missIdx, i)
				continue
			}
			results[i] = stored.Vector
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}

	if len(texts) > 0 && len(missTexts) == 0 {
		return results, nil
	}

	// An empty batch still goes to the embedder so it can reject it.
	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingProvider, len(missTexts), len(fresh))
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for j, vec := range fresh {
			data, err := json.Marshal(storedEmbedding{Model: c.inner.ModelName(), Vector: vec})
			if err != nil {
				return err
			}
			if err := b.Put(c.key(missTexts[j]), data); err != nil {
				return err
			}
			results[missIdx[j]] = vec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write embedding cache: %w", err)
	}

	return results, nil
}

func (c *EmbeddingCache) Dimension() int {
	return c.inner.Dimension()
}

func (c *EmbeddingCache) ModelName() string {
	return c.inner.ModelName()
}

// Count returns the number of cached embeddings.
func (c *EmbeddingCache) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func (c *EmbeddingCache) key(text string) []byte {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return []byte(hex.EncodeToString(h.Sum(nil)))
}
