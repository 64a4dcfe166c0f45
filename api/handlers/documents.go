package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/services"
	"github.com/rs/zerolog/log"
)

type UploadResponse struct {
	Uploaded      []models.Document `json:"uploaded"`
	Skipped       []models.Document `json:"skipped"`
	UploadedCount int               `json:"uploaded_count"`
	SkippedCount  int               `json:"skipped_count"`
}

// UploadPDF stores one or more PDFs. Files whose bytes are already registered
// are reported as skipped.
func (h *Handler) UploadPDF(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["file"]...)
	headers = append(headers, form.File["files"]...)
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	for _, fh := range headers {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Only PDF files are allowed: %s", fh.Filename)})
			return
		}
		if fh.Size > h.cfg.MaxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File %s exceeds the %d byte limit", fh.Filename, h.cfg.MaxUploadSize)})
			return
		}
	}

	ctx := c.Request.Context()
	resp := UploadResponse{Uploaded: []models.Document{}, Skipped: []models.Document{}}

	for _, fh := range headers {
		content, err := readUpload(fh, h.cfg.MaxUploadSize)
		if err != nil {
			log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to read upload")
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to read %s", fh.Filename)})
			return
		}

		saved, err := h.files.Save(content, fh.Filename)
		if err != nil {
			log.Error().Err(err).Msg("Failed to save file")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
			return
		}

		existing, err := h.documents.FindBySHA256(ctx, nil, saved.SHA256)
		if err != nil {
			log.Error().Err(err).Msg("Failed to look up document")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register document"})
			return
		}
		if existing != nil {
			resp.Skipped = append(resp.Skipped, *existing)
			continue
		}

		doc := models.Document{
			DocID:      saved.DocID,
			Filename:   saved.OriginalName,
			StoredPath: saved.StoredPath,
			SHA256:     saved.SHA256,
			SizeBytes:  saved.SizeBytes,
			UploadedAt: time.Now().UTC(),
		}
		if err := h.documents.Upsert(ctx, nil, &doc); err != nil {
			log.Error().Err(err).Msg("Failed to register document")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register document"})
			return
		}
		resp.Uploaded = append(resp.Uploaded, doc)
	}

	resp.UploadedCount = len(resp.Uploaded)
	resp.SkippedCount = len(resp.Skipped)

	log.Info().
		Int("uploaded", resp.UploadedCount).
		Int("skipped", resp.SkippedCount).
		Msg("Upload handled")

	c.JSON(http.StatusOK, resp)
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("upload larger than %d bytes", limit)
	}
	return content, nil
}

type DocumentView struct {
	models.Document
	Processing *models.ProcessingStatus `json:"processing"`
}

func (h *Handler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()

	docs, err := h.documents.List(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}

	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		status, err := h.statuses.Get(ctx, nil, doc.DocID)
		if err != nil {
			log.Warn().Err(err).Str("doc_id", doc.DocID).Msg("Failed to load processing status")
		}
		views = append(views, DocumentView{Document: doc, Processing: status})
	}

	c.JSON(http.StatusOK, gin.H{"documents": views})
}

type ProcessRequest struct {
	ChunkSize    *int `json:"chunk_size"`
	ChunkOverlap *int `json:"chunk_overlap"`
}

// chunkerFor builds the chunker for a process request, falling back to the configured sizes
func (h *Handler) chunkerFor(c *gin.Context) (*services.Chunker, bool) {
	size, overlap := h.cfg.ChunkSize, h.cfg.ChunkOverlap

	if c.Request.ContentLength > 0 {
		var req ProcessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		if req.ChunkSize != nil {
			size = *req.ChunkSize
		}
		if req.ChunkOverlap != nil {
			overlap = *req.ChunkOverlap
		}
	}

	chunker, err := services.NewChunker(size, overlap)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return chunker, true
}

func (h *Handler) ProcessDocument(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}
	chunker, ok := h.chunkerFor(c)
	if !ok {
		return
	}

	status, err := h.processor.Process(c.Request.Context(), doc.DocID, chunker)
	if err != nil {
		if status == nil && errors.Is(err, services.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "status": status})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) ProcessAllDocuments(c *gin.Context) {
	chunker, ok := h.chunkerFor(c)
	if !ok {
		return
	}

	outcomes, err := h.processor.ProcessAll(c.Request.Context(), chunker, h.cfg.ProcessConcurrency)
	if err != nil {
		log.Error().Err(err).Msg("Failed to process documents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process documents"})
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":         outcomes,
		"processed_count": len(outcomes) - failed,
		"failed_count":    failed,
	})
}

func (h *Handler) GetProcessingStatus(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}

	status, err := h.statuses.Get(c.Request.Context(), nil, doc.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to load processing status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load processing status"})
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"doc_id": doc.DocID, "status": models.StatusPending})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetChunks(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	chunks, err := h.chunks.Load(doc.DocID, limit)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to load chunks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chunks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"doc_id": doc.DocID, "chunks": chunks})
}
