package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/config"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/repos"
	"github.com/local/pdftutor/api/services"
	"github.com/local/pdftutor/api/storage"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	cfg       *config.Config
	provider  services.AIProvider
	files     *storage.FileStore
	chunks    *storage.ChunkStore
	documents repos.DocumentRepo
	statuses  repos.ProcessingRepo
	plans     repos.LessonPlanRepo
	memory    repos.TutorMemoryRepo
	attempts  repos.QuizAttemptRepo
	indexes   *services.IndexCache
	processor *services.Processor
	generator *services.Generator
	tutor     *services.TutorAgent
	locks     *services.KeyLocker
}

func New(db *gorm.DB, cfg *config.Config) (*Handler, error) {
	provider := services.NewAIProvider(cfg.ModelProvider, cfg.APIKey(), cfg.Model(), cfg.OllamaHost)
	return NewWithDeps(db, cfg, provider, services.NewPDFExtractor())
}

// NewWithDeps wires the handler around an explicit model provider and page extractor
func NewWithDeps(db *gorm.DB, cfg *config.Config, provider services.AIProvider, extractor services.PageExtractor) (*Handler, error) {
	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	chunks, err := storage.NewChunkStore(cfg.ProcessedDir)
	if err != nil {
		return nil, err
	}

	documents := repos.NewDocumentRepo(db)
	statuses := repos.NewProcessingRepo(db)
	indexes := services.NewIndexCache(chunks)

	return &Handler{
		db:        db,
		cfg:       cfg,
		provider:  provider,
		files:     files,
		chunks:    chunks,
		documents: documents,
		statuses:  statuses,
		plans:     repos.NewLessonPlanRepo(db),
		memory:    repos.NewTutorMemoryRepo(db),
		attempts:  repos.NewQuizAttemptRepo(db),
		indexes:   indexes,
		processor: services.NewProcessor(extractor, chunks, documents, statuses, indexes),
		generator: services.NewGenerator(provider),
		tutor:     services.NewTutorAgent(),
		locks:     services.NewKeyLocker(),
	}, nil
}

// Routes registers every API route on router
func (h *Handler) Routes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/health", h.Health)

		api.POST("/upload", h.UploadPDF)
		api.GET("/documents", h.ListDocuments)
		api.POST("/documents/process", h.ProcessAllDocuments)
		api.POST("/documents/:docId/process", h.ProcessDocument)
		api.GET("/documents/:docId/status", h.GetProcessingStatus)
		api.GET("/documents/:docId/chunks", h.GetChunks)

		api.POST("/chat/ask", h.ChatAsk)

		api.POST("/lessons/:docId/generate", h.GenerateLessonPlan)
		api.PUT("/lessons/:docId/syllabus", h.ImportSyllabus)
		api.GET("/lessons/:docId", h.GetLessonPlan)

		api.GET("/tutor/:docId/state", h.GetTutorState)
		api.GET("/tutor/:docId/next", h.NextStep)
		api.POST("/tutor/:docId/answer", h.SubmitAnswer)
		api.GET("/tutor/:docId/attempts", h.ListAttempts)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"model_provider": h.provider.GetProviderName(),
	})
}

// requireDocument loads the document named by the docId path param, writing 404 if absent
func (h *Handler) requireDocument(c *gin.Context) (*models.Document, bool) {
	docID := c.Param("docId")
	doc, err := h.documents.Get(c.Request.Context(), nil, docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to load document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load document"})
		return nil, false
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Document %s not found", docID)})
		return nil, false
	}
	return doc, true
}

func (h *Handler) userID(c *gin.Context) string {
	if id := c.Query("user_id"); id != "" {
		return id
	}
	return h.cfg.DefaultUserID
}
