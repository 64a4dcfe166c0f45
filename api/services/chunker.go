package services

import (
	"fmt"
	"strings"

	"github.com/local/pdftutor/api/models"
)

const (
	DefaultChunkSize    = 1200 // characters per chunk
	DefaultChunkOverlap = 200  // overlap between chunks
)

// Chunker splits page text into overlapping fixed-length character windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window settings. It requires size > 0 and 0 <= overlap < size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must be >= 0, got %d", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be < chunk size (%d)", ErrInvalidChunkConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkID builds the stable identifier of a chunk
func ChunkID(docID string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%s::p%d::c%d", docID, pageNumber, chunkIndex)
}

// ChunkPages splits every page into chunks. Chunks never cross a page boundary and
// chunk indexes run across the whole document.
func (c *Chunker) ChunkPages(docID string, pages []models.Page) []models.Chunk {
	chunks := []models.Chunk{}
	chunkIndex := 0

	for _, page := range pages {
		runes := []rune(strings.TrimSpace(page.Text))
		if len(runes) == 0 {
			continue
		}

		start := 0
		for start < len(runes) {
			end := start + c.size
			if end > len(runes) {
				end = len(runes)
			}

			text := strings.TrimSpace(string(runes[start:end]))
			if text != "" {
				chunks = append(chunks, models.Chunk{
					ChunkID: ChunkID(docID, page.Number, chunkIndex),
					Text:    text,
					Metadata: models.ChunkMetadata{
						DocID:      docID,
						PageNumber: page.Number,
						ChunkIndex: chunkIndex,
						CharStart:  start,
						CharEnd:    end,
					},
				})
				chunkIndex++
			}

			if end == len(runes) {
				break
			}

			// Move forward, but overlap
			start = end - c.overlap
		}
	}

	return chunks
}
