package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/services"
	"github.com/rs/zerolog/log"
)

const (
	defaultTopK = 5
	maxTopK     = 20
)

type ChatRequest struct {
	DocID    string `json:"doc_id" binding:"required"`
	Question string `json:"question" binding:"required"`
	TopK     *int   `json:"top_k"`
	Answer   bool   `json:"answer"`
}

type ChatResponse struct {
	Question string                    `json:"question"`
	Results  []services.RetrievedChunk `json:"results"`
	Answer   *services.GroundedAnswer  `json:"answer,omitempty"`
}

// ChatAsk retrieves the chunks of a processed document that best match a question
// and, when asked to, answers it from those chunks only.
func (h *Handler) ChatAsk(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question must not be empty"})
		return
	}

	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 1 || topK > maxTopK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be between 1 and 20"})
		return
	}

	ctx := c.Request.Context()

	status, err := h.statuses.Get(ctx, nil, req.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", req.DocID).Msg("Failed to load processing status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load processing status"})
		return
	}
	if status == nil || status.Status != models.StatusProcessed {
		c.JSON(http.StatusConflict, gin.H{"error": "This document has not been processed yet"})
		return
	}

	idx, err := h.indexes.Get(req.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", req.DocID).Msg("Failed to load index")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chunks"})
		return
	}
	if idx.Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No chunks found for this document"})
		return
	}

	resp := ChatResponse{
		Question: req.Question,
		Results:  idx.Query(req.Question, topK),
	}

	if req.Answer && len(resp.Results) > 0 {
		answer, err := h.generator.Answer(ctx, req.Question, resp.Results)
		if err != nil {
			log.Error().Err(err).Str("doc_id", req.DocID).Msg("Failed to generate answer")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate answer"})
			return
		}
		resp.Answer = &answer
	}

	c.JSON(http.StatusOK, resp)
}
