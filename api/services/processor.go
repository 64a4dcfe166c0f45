package services

import (
	"context"
	"fmt"
	"time"

	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/repos"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ProcessOutcome is the result of processing one document in a batch
type ProcessOutcome struct {
	DocID  string                   `json:"doc_id"`
	Status *models.ProcessingStatus `json:"status,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// Processor runs extract -> chunk -> store for registered documents and records
// the outcome as the document's processing status.
type Processor struct {
	extractor PageExtractor
	chunks    ChunkStore
	docs      repos.DocumentRepo
	statuses  repos.ProcessingRepo
	cache     *IndexCache
	now       func() time.Time
}

func NewProcessor(extractor PageExtractor, chunks ChunkStore, docs repos.DocumentRepo, statuses repos.ProcessingRepo, cache *IndexCache) *Processor {
	return &Processor{
		extractor: extractor,
		chunks:    chunks,
		docs:      docs,
		statuses:  statuses,
		cache:     cache,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process extracts and chunks one document. Failures after the document is found
// are recorded as a failed status and also returned.
func (p *Processor) Process(ctx context.Context, docID string, chunker *Chunker) (*models.ProcessingStatus, error) {
	doc, err := p.docs.Get(ctx, nil, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}

	pages, err := p.extractor.Extract(doc.StoredPath)
	if err != nil {
		return p.fail(ctx, docID, fmt.Errorf("failed to extract text: %w", err))
	}

	chunks := chunker.ChunkPages(docID, pages)
	if err := p.chunks.Save(docID, chunks); err != nil {
		return p.fail(ctx, docID, fmt.Errorf("failed to save chunks: %w", err))
	}
	if p.cache != nil {
		p.cache.Invalidate(docID)
	}

	status := &models.ProcessingStatus{
		DocID:       docID,
		Status:      models.StatusProcessed,
		NumPages:    len(pages),
		NumChunks:   len(chunks),
		ProcessedAt: p.now(),
	}
	if err := p.statuses.Upsert(ctx, nil, status); err != nil {
		return nil, fmt.Errorf("failed to record processing status: %w", err)
	}

	log.Info().
		Str("doc_id", docID).
		Int("pages", len(pages)).
		Int("chunks", len(chunks)).
		Int("chunk_size", chunker.Size()).
		Int("chunk_overlap", chunker.Overlap()).
		Msg("Document processed")

	return status, nil
}

// ProcessAll processes every registered document with at most concurrency
// documents in flight. A failing document does not stop the others.
func (p *Processor) ProcessAll(ctx context.Context, chunker *Chunker, concurrency int) ([]ProcessOutcome, error) {
	docs, err := p.docs.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]ProcessOutcome, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			status, err := p.Process(gctx, doc.DocID, chunker)
			outcomes[i] = ProcessOutcome{DocID: doc.DocID, Status: status}
			if err != nil {
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (p *Processor) fail(ctx context.Context, docID string, cause error) (*models.ProcessingStatus, error) {
	msg := cause.Error()
	status := &models.ProcessingStatus{
		DocID:       docID,
		Status:      models.StatusFailed,
		ProcessedAt: p.now(),
		Error:       &msg,
	}
	if err := p.statuses.Upsert(ctx, nil, status); err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to record failed status")
	}

	log.Warn().Err(cause).Str("doc_id", docID).Msg("Document processing failed")
	return status, cause
}
