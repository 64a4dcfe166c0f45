package services

import (
	"embed"
	"fmt"
	"strings"

	"github.com/local/pdftutor/api/models"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Prompt template names under prompts/
const (
	PromptExplain  = "explain"
	PromptQuiz     = "quiz"
	PromptEvaluate = "evaluate"
	PromptSyllabus = "syllabus"
	PromptAnswer   = "answer_grounded"
)

// NoAnswerText is what a grounded answer says when the context cannot support one
const NoAnswerText = "The provided document does not contain enough information to answer this."

// RenderPrompt loads a system prompt and fills its {placeholders}
func RenderPrompt(name string, vars map[string]string) (string, error) {
	raw, err := promptFS.ReadFile("prompts/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %q: %w", name, err)
	}
	out := string(raw)
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return strings.TrimSpace(out), nil
}

// DifficultyStyle adds pitch hints for the given difficulty
func DifficultyStyle(d models.Difficulty) string {
	switch d {
	case models.DifficultyHard:
		return "Assume solid prior understanding. Go into edge cases and connections between ideas."
	case models.DifficultyMedium:
		return "Assume the basics are known. Focus on how the ideas fit together."
	default:
		return "Use simple language and short sentences. Define every term before using it."
	}
}
