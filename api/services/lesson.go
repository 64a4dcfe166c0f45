package services

import (
	"strings"

	"github.com/local/pdftutor/api/models"
)

const (
	DefaultLessonContextTopK = 3
	untitledTopic            = "Untitled Topic"
)

// SelectLessonContext retrieves the chunks best matching a lesson step and joins
// their text with newlines, best first. An empty string means no chunk matched.
func SelectLessonContext(chunks []models.Chunk, topic, subtopic string, topK int) string {
	return SelectLessonContextFrom(BuildIndex(chunks), topic, subtopic, topK)
}

// SelectLessonContextFrom is SelectLessonContext over an already built index
func SelectLessonContextFrom(idx *Index, topic, subtopic string, topK int) string {
	results := idx.Query(topic+" "+subtopic, topK)
	if len(results) == 0 {
		return ""
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n")
}

// BuildLessonPlan turns a syllabus into explain/quiz steps, one pair per subtopic,
// numbered across the whole syllabus.
func BuildLessonPlan(docID string, syllabus models.Syllabus) []models.LessonStep {
	steps := []models.LessonStep{}
	index := 0

	for _, topic := range syllabus.Topics {
		title := topic.Title
		if strings.TrimSpace(title) == "" {
			title = untitledTopic
		}
		for _, sub := range topic.Subtopics {
			for _, action := range []models.Action{models.ActionExplain, models.ActionQuiz} {
				steps = append(steps, models.LessonStep{
					DocID:     docID,
					StepIndex: index,
					Topic:     title,
					Subtopic:  sub,
					Action:    action,
				})
				index++
			}
		}
	}

	return steps
}

// FindStep returns the step with the given index, if the plan has one
func FindStep(steps []models.LessonStep, stepIndex int) (models.LessonStep, bool) {
	for _, s := range steps {
		if s.StepIndex == stepIndex {
			return s, true
		}
	}
	return models.LessonStep{}, false
}
