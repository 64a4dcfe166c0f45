package services

import (
	"fmt"
	"sync"

	"github.com/local/pdftutor/api/models"
	"golang.org/x/sync/singleflight"
)

// ChunkStore loads and replaces the chunk set of a document
type ChunkStore interface {
	Save(docID string, chunks []models.Chunk) error
	Load(docID string, limit int) ([]models.Chunk, error)
}

// IndexCache keeps one built BM25 index per document. Concurrent misses for the
// same document share a single build; Invalidate drops the entry when the
// document's chunks change.
type IndexCache struct {
	store ChunkStore

	mu       sync.RWMutex
	entries  map[string]*Index
	versions map[string]uint64
	group    singleflight.Group
}

func NewIndexCache(store ChunkStore) *IndexCache {
	return &IndexCache{
		store:    store,
		entries:  make(map[string]*Index),
		versions: make(map[string]uint64),
	}
}

// Get returns the cached index for docID, building it from the chunk store on a miss
func (c *IndexCache) Get(docID string) (*Index, error) {
	c.mu.RLock()
	idx, ok := c.entries[docID]
	version := c.versions[docID]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", docID, version), func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.entries[docID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		chunks, err := c.store.Load(docID, 0)
		if err != nil {
			return nil, err
		}
		built := BuildIndex(chunks)

		c.mu.Lock()
		// an Invalidate during the build means these chunks may be stale
		if c.versions[docID] == version {
			c.entries[docID] = built
		}
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build index for %s: %w", docID, err)
	}
	return v.(*Index), nil
}

// Invalidate forgets the index of docID
func (c *IndexCache) Invalidate(docID string) {
	c.mu.Lock()
	delete(c.entries, docID)
	c.versions[docID]++
	c.mu.Unlock()
}
