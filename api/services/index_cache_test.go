package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/local/pdftutor/api/models"
)

// memChunkStore is an in-memory ChunkStore that counts loads
type memChunkStore struct {
	mu     sync.Mutex
	chunks map[string][]models.Chunk
	loads  atomic.Int32
	delay  time.Duration
	err    error
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{chunks: make(map[string][]models.Chunk)}
}

func (s *memChunkStore) Save(docID string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[docID] = chunks
	return nil
}

func (s *memChunkStore) Load(docID string, limit int) ([]models.Chunk, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := s.chunks[docID]
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func TestIndexCacheBuildsOnce(t *testing.T) {
	store := newMemChunkStore()
	store.Save("doc", animalCorpus)
	store.delay = 20 * time.Millisecond
	cache := NewIndexCache(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := cache.Get("doc")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if idx.Len() != len(animalCorpus) {
				t.Errorf("Len = %d", idx.Len())
			}
		}()
	}
	wg.Wait()

	if _, err := cache.Get("doc"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := store.loads.Load(); got != 1 {
		t.Fatalf("loads = %d, want 1", got)
	}
}

func TestIndexCacheInvalidate(t *testing.T) {
	store := newMemChunkStore()
	store.Save("doc", animalCorpus[:1])
	cache := NewIndexCache(store)

	idx, _ := cache.Get("doc")
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}

	store.Save("doc", animalCorpus)
	cache.Invalidate("doc")

	idx, _ = cache.Get("doc")
	if idx.Len() != len(animalCorpus) {
		t.Fatalf("Len after invalidate = %d, want %d", idx.Len(), len(animalCorpus))
	}
	if got := store.loads.Load(); got != 2 {
		t.Fatalf("loads = %d, want 2", got)
	}
}

func TestIndexCacheDoesNotCacheErrors(t *testing.T) {
	store := newMemChunkStore()
	store.err = errors.New("disk gone")
	cache := NewIndexCache(store)

	if _, err := cache.Get("doc"); err == nil {
		t.Fatal("expected error")
	}

	store.err = nil
	store.Save("doc", animalCorpus)
	idx, err := cache.Get("doc")
	if err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if idx.Len() != len(animalCorpus) {
		t.Fatalf("Len = %d", idx.Len())
	}
}
