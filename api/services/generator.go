package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/local/pdftutor/api/models"
	"github.com/rs/zerolog/log"
)

const (
	evaluationFallbackFeedback = "Unable to evaluate answer reliably."
	explainFallback            = "Sorry, I could not produce an explanation for this step. Please try again."
	quizFallback               = "Sorry, I could not create a question for this step. Please try again."
)

// EvaluationResult is a conceptual grade of a learner's answer
type EvaluationResult struct {
	Score    float64 `json:"score"` // 0.0 to 1.0
	Feedback string  `json:"feedback"`
}

// Citation points back at a chunk used for a grounded answer
type Citation struct {
	Source     int    `json:"source"`
	DocID      string `json:"doc_id"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// GroundedAnswer is an answer generated only from retrieved chunks
type GroundedAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Generator produces tutoring content through an AIProvider. Malformed model output
// is replaced by safe defaults; only transport failures are returned as errors.
type Generator struct {
	provider AIProvider
}

func NewGenerator(provider AIProvider) *Generator {
	return &Generator{provider: provider}
}

// Explain writes an explanation of the lesson context at the given difficulty
func (g *Generator) Explain(ctx context.Context, lessonContext string, difficulty models.Difficulty) (string, error) {
	system, err := RenderPrompt(PromptExplain, map[string]string{
		"difficulty": string(difficulty),
		"style":      DifficultyStyle(difficulty),
	})
	if err != nil {
		return "", err
	}

	text, err := g.provider.GenerateText(ctx, fmt.Sprintf("Context:\n%s\n\nExplain the next concept.", lessonContext), system)
	if err != nil {
		return "", fmt.Errorf("failed to generate explanation: %w", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return explainFallback, nil
	}
	return text, nil
}

// Quiz writes one question about the lesson context, without its answer
func (g *Generator) Quiz(ctx context.Context, lessonContext string, difficulty models.Difficulty) (string, error) {
	system, err := RenderPrompt(PromptQuiz, map[string]string{
		"difficulty": string(difficulty),
		"style":      DifficultyStyle(difficulty),
	})
	if err != nil {
		return "", err
	}

	text, err := g.provider.GenerateText(ctx, fmt.Sprintf("Context:\n%s\n\nCreate a quiz question.", lessonContext), system)
	if err != nil {
		return "", fmt.Errorf("failed to generate quiz question: %w", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return quizFallback, nil
	}
	return text, nil
}

// Evaluate grades an answer against the lesson context. The score is always in [0,1].
func (g *Generator) Evaluate(ctx context.Context, lessonContext, question, answer string) (EvaluationResult, error) {
	system, err := RenderPrompt(PromptEvaluate, nil)
	if err != nil {
		return EvaluationResult{}, err
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s\n\nStudent answer:\n%s\n\nEvaluate now.", lessonContext, question, answer)
	response, err := g.provider.GenerateJSON(ctx, prompt, system)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("failed to evaluate answer: %w", err)
	}

	result, ok := parseEvaluation(response)
	if !ok {
		log.Warn().Str("response", response).Msg("Failed to parse evaluation JSON")
		return EvaluationResult{Score: 0, Feedback: evaluationFallbackFeedback}, nil
	}
	return result, nil
}

// ExtractSyllabus derives topics and subtopics from study material. Unparseable
// output yields an empty syllabus.
func (g *Generator) ExtractSyllabus(ctx context.Context, material string) (models.Syllabus, error) {
	system, err := RenderPrompt(PromptSyllabus, nil)
	if err != nil {
		return models.Syllabus{}, err
	}

	response, err := g.provider.GenerateJSON(ctx, fmt.Sprintf("Study material:\n%s", material), system)
	if err != nil {
		return models.Syllabus{}, fmt.Errorf("failed to extract syllabus: %w", err)
	}

	var syllabus models.Syllabus
	if err := json.Unmarshal([]byte(cleanJSON(response)), &syllabus); err != nil {
		log.Warn().Err(err).Str("response", response).Msg("Failed to parse syllabus JSON")
		return models.Syllabus{Topics: []models.SyllabusTopic{}}, nil
	}
	if syllabus.Topics == nil {
		syllabus.Topics = []models.SyllabusTopic{}
	}
	return syllabus, nil
}

// Answer responds to a question using only the given chunks, citing each one
func (g *Generator) Answer(ctx context.Context, question string, chunks []RetrievedChunk) (GroundedAnswer, error) {
	system, err := RenderPrompt(PromptAnswer, map[string]string{"no_answer": NoAnswerText})
	if err != nil {
		return GroundedAnswer{}, err
	}

	blocks := make([]string, 0, len(chunks))
	citations := make([]Citation, 0, len(chunks))
	for i, ch := range chunks {
		blocks = append(blocks, fmt.Sprintf("[Source %d | Page %d]\n%s", i+1, ch.Metadata.PageNumber, ch.Text))
		citations = append(citations, Citation{
			Source:     i + 1,
			DocID:      ch.Metadata.DocID,
			Page:       ch.Metadata.PageNumber,
			ChunkIndex: ch.Metadata.ChunkIndex,
		})
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s\n\nAnswer using only the context above.", strings.Join(blocks, "\n\n"), question)
	text, err := g.provider.GenerateText(ctx, prompt, system)
	if err != nil {
		return GroundedAnswer{}, fmt.Errorf("failed to generate answer: %w", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		text = NoAnswerText
	}

	return GroundedAnswer{Answer: text, Citations: citations}, nil
}

func parseEvaluation(response string) (EvaluationResult, bool) {
	var raw struct {
		Score    interface{} `json:"score"`
		Feedback *string     `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(response)), &raw); err != nil {
		return EvaluationResult{}, false
	}
	if raw.Feedback == nil {
		return EvaluationResult{}, false
	}

	var score float64
	switch v := raw.Score.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return EvaluationResult{}, false
		}
		score = parsed
	default:
		return EvaluationResult{}, false
	}

	return EvaluationResult{Score: Clamp01(score), Feedback: *raw.Feedback}, true
}

// cleanJSON strips markdown fences and any prose around the outermost object
func cleanJSON(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
