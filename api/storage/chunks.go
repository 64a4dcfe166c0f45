package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/local/pdftutor/api/models"
)

const chunksFile = "chunks.jsonl"

// ChunkStore persists a document's chunks as JSON lines in
// <root>/<doc_id>/chunks.jsonl. Saving replaces the whole set.
type ChunkStore struct {
	root string
}

func NewChunkStore(root string) (*ChunkStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("storage: create processed dir: %w", err)
	}
	return &ChunkStore{root: root}, nil
}

// Path returns the chunk file location for a document
func (s *ChunkStore) Path(docID string) string {
	return filepath.Join(s.root, SafeFilename(docID), chunksFile)
}

// Save writes all chunks, one record per line, replacing any previous set
func (s *ChunkStore) Save(docID string, chunks []models.Chunk) error {
	path := s.Path(docID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("storage: create chunk dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, ch := range chunks {
		if err := enc.Encode(ch); err != nil {
			return fmt.Errorf("storage: encode chunk %s: %w", ch.ChunkID, err)
		}
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("storage: write chunks: %w", err)
	}
	return nil
}

// Load reads up to limit chunks in stored order; limit <= 0 reads all. A document
// that was never chunked has no chunks.
func (s *ChunkStore) Load(docID string, limit int) ([]models.Chunk, error) {
	chunks := []models.Chunk{}

	f, err := os.Open(s.Path(docID))
	if errors.Is(err, fs.ErrNotExist) {
		return chunks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open chunks: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ch models.Chunk
		if err := json.Unmarshal(line, &ch); err != nil {
			return nil, fmt.Errorf("storage: decode chunk line %d: %w", len(chunks)+1, err)
		}
		chunks = append(chunks, ch)
		if limit > 0 && len(chunks) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("storage: read chunks: %w", err)
	}
	return chunks, nil
}
