package services

import (
	"math"
	"time"

	"github.com/local/pdftutor/api/models"
)

// Defaults for a learner seen for the first time on a document
const (
	InitialMastery    = 0.3
	InitialDifficulty = models.DifficultyEasy
	InitialAction     = models.ActionExplain
)

// Mastery thresholds. Actions and difficulty use different cut points.
const (
	reviewBelow     = 0.4
	quizBelow       = 0.7
	hardAbove       = 0.75
	mediumAbove     = 0.4
	advanceAtScore  = 0.7
	masteryKeep     = 0.7
	masteryFromQuiz = 0.3
)

// TutorAgent decides the next tutoring move and folds quiz scores into the
// learner's mastery estimate. It performs no I/O.
type TutorAgent struct {
	Now func() time.Time
}

func NewTutorAgent() *TutorAgent {
	return &TutorAgent{Now: func() time.Time { return time.Now().UTC() }}
}

// NewTutorState returns the starting state for a learner on a document
func NewTutorState(userID, docID string, now time.Time) models.TutorState {
	return models.TutorState{
		UserID:       userID,
		DocID:        docID,
		StepIndex:    0,
		Difficulty:   InitialDifficulty,
		LastAction:   InitialAction,
		MasteryScore: InitialMastery,
		UpdatedAt:    now,
	}
}

// DecideNextAction depends only on mastery; a nil state means a first encounter.
func (a *TutorAgent) DecideNextAction(state *models.TutorState) models.Action {
	if state == nil {
		return models.ActionExplain
	}
	switch {
	case state.MasteryScore < reviewBelow:
		return models.ActionReview
	case state.MasteryScore < quizBelow:
		return models.ActionQuiz
	default:
		return models.ActionExplain
	}
}

// UpdateAfterScoredQuiz returns the state that results from a quiz scored in [0,1].
// Mastery is an exponential moving average weighted 30% toward the new score, and
// the step only advances on a score of at least 0.7.
func (a *TutorAgent) UpdateAfterScoredQuiz(state models.TutorState, score float64) models.TutorState {
	mastery := Clamp01(state.MasteryScore*masteryKeep + score*masteryFromQuiz)

	next := state
	next.MasteryScore = mastery
	next.Difficulty = DifficultyFor(mastery)
	next.LastAction = models.ActionQuiz
	if score >= advanceAtScore {
		next.StepIndex = state.StepIndex + 1
	}
	next.UpdatedAt = a.now()
	return next
}

// DifficultyFor maps a mastery score to the content difficulty
func DifficultyFor(mastery float64) models.Difficulty {
	switch {
	case mastery > hardAbove:
		return models.DifficultyHard
	case mastery > mediumAbove:
		return models.DifficultyMedium
	default:
		return models.DifficultyEasy
	}
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func (a *TutorAgent) now() time.Time {
	if a == nil || a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now()
}
