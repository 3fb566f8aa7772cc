package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"abstractrag/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache caches retrieval results per index generation. Entries from an
// older generation are never returned.
type QueryCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
}

type cacheEntry struct {
	results   []domain.ScoredDocument
	timestamp time.Time
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	entries, _ := lru.New[string, cacheEntry](maxSize)
	return &QueryCache{
		entries: entries,
		ttl:     ttl,
	}
}

func cacheKey(query string, topK int, generation uint64) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(topK)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(generation, 10)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get returns a fresh slice on every hit so callers may reorder or trim it.
func (c *QueryCache) Get(query string, topK int, generation uint64) ([]domain.ScoredDocument, bool) {
	key := cacheKey(query, topK, generation)
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) > c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return cloneResults(entry.results), true
}

// Put stores a copy of results. Embeddings and metadata inside the documents
// are shared with the index snapshot and must be treated as read-only.
func (c *QueryCache) Put(query string, topK int, generation uint64, results []domain.ScoredDocument) {
	c.entries.Add(cacheKey(query, topK, generation), cacheEntry{
		results:   cloneResults(results),
		timestamp: time.Now(),
	})
}

// Invalidate drops every entry. Called after an index swap.
func (c *QueryCache) Invalidate() {
	c.entries.Purge()
}

func (c *QueryCache) Size() int {
	return c.entries.Len()
}

func cloneResults(results []domain.ScoredDocument) []domain.ScoredDocument {
	if results == nil {
		return nil
	}
	return append([]domain.ScoredDocument(nil), results...)
}
