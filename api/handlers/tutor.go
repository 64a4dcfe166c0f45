package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/local/pdftutor/api/models"
	"github.com/local/pdftutor/api/services"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type NextStepResponse struct {
	Completed  bool               `json:"completed"`
	Step       *models.LessonStep `json:"step,omitempty"`
	Action     models.Action      `json:"action,omitempty"`
	Difficulty models.Difficulty  `json:"difficulty,omitempty"`
	Content    string             `json:"content,omitempty"`
	Question   string             `json:"question,omitempty"`
	State      models.TutorState  `json:"state"`
}

type AnswerRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type AnswerResponse struct {
	Feedback   string             `json:"feedback"`
	Score      float64            `json:"score"`
	Attempt    models.QuizAttempt `json:"attempt"`
	State      models.TutorState  `json:"state"`
	NextAction models.Action      `json:"next_action"`
}

// currentStep is the lesson step a learner is on together with its retrieved context
type currentStep struct {
	step    models.LessonStep
	context string
}

// GetTutorState returns the stored state, or the starting state if the learner is new
func (h *Handler) GetTutorState(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}
	userID := h.userID(c)

	state, err := h.memory.Get(c.Request.Context(), nil, userID, doc.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Str("user_id", userID).Msg("Failed to load tutor state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tutor state"})
		return
	}
	if state == nil {
		initial := services.NewTutorState(userID, doc.DocID, h.tutor.Now())
		c.JSON(http.StatusOK, gin.H{"state": initial, "persisted": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state, "persisted": true})
}

// NextStep resolves the learner's current lesson step and produces the content the
// tutor decides on: an explanation, an easy review, or a quiz question.
func (h *Handler) NextStep(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := h.userID(c)

	unlock := h.locks.Lock(services.LearnerKey(userID, doc.DocID))
	state, err := h.loadOrInitState(ctx, userID, doc.DocID)
	unlock()
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Str("user_id", userID).Msg("Failed to load tutor state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tutor state"})
		return
	}

	current, completed, ok := h.resolveStep(c, doc.DocID, state)
	if !ok {
		return
	}
	if completed {
		c.JSON(http.StatusOK, NextStepResponse{Completed: true, State: state})
		return
	}

	action := h.tutor.DecideNextAction(&state)
	resp := NextStepResponse{
		Step:       &current.step,
		Action:     action,
		Difficulty: state.Difficulty,
		State:      state,
	}

	switch action {
	case models.ActionQuiz:
		resp.Question, err = h.generator.Quiz(ctx, current.context, state.Difficulty)
	case models.ActionReview:
		resp.Difficulty = models.DifficultyEasy
		resp.Content, err = h.generator.Explain(ctx, current.context, models.DifficultyEasy)
	default:
		resp.Content, err = h.generator.Explain(ctx, current.context, state.Difficulty)
	}
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Str("action", string(action)).Msg("Failed to generate tutor content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tutor content"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitAnswer grades an answer to the current step, records the attempt and folds
// the score into the learner's state. Submissions for one learner are serialized.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please write an answer before submitting"})
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = h.cfg.DefaultUserID
	}
	ctx := c.Request.Context()

	unlock := h.locks.Lock(services.LearnerKey(userID, doc.DocID))
	defer unlock()

	state, err := h.loadOrInitState(ctx, userID, doc.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Str("user_id", userID).Msg("Failed to load tutor state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tutor state"})
		return
	}

	current, completed, ok := h.resolveStep(c, doc.DocID, state)
	if !ok {
		return
	}
	if completed {
		c.JSON(http.StatusConflict, gin.H{"error": "All lesson steps are already completed"})
		return
	}

	eval, err := h.generator.Evaluate(ctx, current.context, req.Question, req.Answer)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to evaluate answer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate answer"})
		return
	}

	attempt := models.QuizAttempt{
		UserID:    userID,
		DocID:     doc.DocID,
		StepIndex: current.step.StepIndex,
		Question:  req.Question,
		Answer:    req.Answer,
		Score:     eval.Score,
		Feedback:  eval.Feedback,
	}
	next := h.tutor.UpdateAfterScoredQuiz(state, eval.Score)

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := h.attempts.Insert(ctx, tx, &attempt); err != nil {
			return err
		}
		return h.memory.Upsert(ctx, tx, &next)
	})
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Str("user_id", userID).Msg("Failed to save progress")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save progress"})
		return
	}

	log.Info().
		Str("doc_id", doc.DocID).
		Str("user_id", userID).
		Int("step", current.step.StepIndex).
		Float64("score", eval.Score).
		Float64("mastery", next.MasteryScore).
		Msg("Answer evaluated")

	c.JSON(http.StatusOK, AnswerResponse{
		Feedback:   eval.Feedback,
		Score:      eval.Score,
		Attempt:    attempt,
		State:      next,
		NextAction: h.tutor.DecideNextAction(&next),
	})
}

func (h *Handler) ListAttempts(c *gin.Context) {
	doc, ok := h.requireDocument(c)
	if !ok {
		return
	}
	userID := h.userID(c)

	attempts, err := h.attempts.ListFor(c.Request.Context(), nil, userID, doc.DocID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", doc.DocID).Msg("Failed to list attempts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list attempts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"doc_id": doc.DocID, "user_id": userID, "attempts": attempts})
}

// loadOrInitState returns the learner's state, persisting the starting state on first use
func (h *Handler) loadOrInitState(ctx context.Context, userID, docID string) (models.TutorState, error) {
	state, err := h.memory.Get(ctx, nil, userID, docID)
	if err != nil {
		return models.TutorState{}, err
	}
	if state != nil {
		return *state, nil
	}

	initial := services.NewTutorState(userID, docID, h.tutor.Now())
	if err := h.memory.Upsert(ctx, nil, &initial); err != nil {
		return models.TutorState{}, err
	}
	return initial, nil
}

// resolveStep finds the learner's lesson step and its context. It writes the error
// response itself and reports ok=false when the tutor cannot proceed.
func (h *Handler) resolveStep(c *gin.Context, docID string, state models.TutorState) (current currentStep, completed bool, ok bool) {
	ctx := c.Request.Context()

	status, err := h.statuses.Get(ctx, nil, docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to load processing status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load processing status"})
		return currentStep{}, false, false
	}
	if status == nil || status.Status != models.StatusProcessed {
		c.JSON(http.StatusConflict, gin.H{"error": "This document has not been processed yet"})
		return currentStep{}, false, false
	}

	idx, err := h.indexes.Get(docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to load index")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chunks"})
		return currentStep{}, false, false
	}
	if idx.Len() == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "This document has not been processed yet"})
		return currentStep{}, false, false
	}

	steps, err := h.plans.Load(ctx, nil, docID)
	if err != nil {
		log.Error().Err(err).Str("doc_id", docID).Msg("Failed to load lesson plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load lesson plan"})
		return currentStep{}, false, false
	}
	if len(steps) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "No lesson plan found for this document"})
		return currentStep{}, false, false
	}

	step, found := services.FindStep(steps, state.StepIndex)
	if !found {
		return currentStep{}, true, true
	}

	lessonContext := services.SelectLessonContextFrom(idx, step.Topic, step.Subtopic, services.DefaultLessonContextTopK)
	if strings.TrimSpace(lessonContext) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not find relevant content for this lesson step"})
		return currentStep{}, false, false
	}

	return currentStep{step: step, context: lessonContext}, false, true
}
