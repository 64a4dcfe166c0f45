package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/services"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	syllabusSourceChunks = 5
	maxSyllabusBody      = 1 << 20
)

type LessonPlanResponse struct {
	DocID    string              `json:"doc_id"`
	Syllabus *models.Syllabus    `json:"syllabus,omitempty"`
	Steps    []models.LessonStep `json:"steps"`
}

// GenerateLessonPlan extracts a syllabus from the opening chunks of a document and
// replaces its lesson plan with one built from it.
func (h *Handler) GenerateLessonPlan(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	chunks, err := h.chunks.Load(doc.DocID, syllabusSourceChunks)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to load chunks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chunks"})
		return
	}
	if len(chunks) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "This document has not been processed yet"})
		return
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	syllabus, err := h.generator.ExtractSyllabus(ctx, strings.Join(texts, "\n"))
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to extract syllabus")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to extract syllabus"})
		return
	}

	h.savePlan(c, doc.DocID, syllabus)
}

// ImportSyllabus builds the lesson plan from a syllabus supplied as JSON or YAML
func (h *Handler) ImportSyllabus(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSyllabusBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	var syllabus models.Syllabus
	if strings.Contains(c.ContentType(), "yaml") {
		err = yaml.Unmarshal(body, &syllabus)
	} else {
		err = json.Unmarshal(body, &syllabus)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid syllabus: " + err.Error()})
		return
	}
	if syllabus.Topics == nil {
		syllabus.Topics = []models.SyllabusTopic{}
	}

	h.savePlan(c, doc.DocID, syllabus)
}

func (h *Handler) savePlan(c *gin.Context, docID string, syllabus models.Syllabus) {
	steps := services.BuildLessonPlan(docID, syllabus)
	if err := h.plans.Save(c.Request.Context(), docID, steps); err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to save lesson plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save lesson plan"})
		return
	}

	log.Info().
		Str("doc_id", docID).
		Int("topics", len(syllabus.Topics)).
		Int("steps", len(steps)).
		Msg("Lesson plan saved")

	c.JSON(http.StatusOK, LessonPlanResponse{DocID: docID, Syllabus: &syllabus, Steps: steps})
}

func (h *Handler) GetLessonPlan(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}

	steps, err := h.plans.Load(c.Request.Context(), nil, doc.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to load lesson plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load lesson plan"})
		return
	}

	c.JSON(http.StatusOK, LessonPlanResponse{DocID: doc.DocID, Steps: steps})
}
