package models

import (
	"time"

	"gorm.io/gorm"
)

// Action is the pedagogical move the tutor makes for a lesson step.
type Action string

const (
	ActionExplain Action = "explain"
	ActionQuiz    Action = "quiz"
	ActionReview  Action = "review"
)

// Difficulty controls how generated explanations and questions are pitched.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Processing outcomes recorded for a document. Pending is reported for
// documents that were never processed and is not stored.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Document is an uploaded PDF tracked by the registry
type Document struct {
	DocID      string    `gorm:"primaryKey" json:"doc_id"`
	Filename   string    `json:"filename"`
	StoredPath string    `json:"stored_path"`
	SHA256     string    `gorm:"column:sha256;index" json:"sha256"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}

// ProcessingStatus records the outcome of the last extract + chunk run for a document
type ProcessingStatus struct {
	DocID       string    `gorm:"primaryKey" json:"doc_id"`
	Status      string    `json:"status"` // processed, failed
	NumPages    int       `json:"num_pages"`
	NumChunks   int       `json:"num_chunks"`
	ProcessedAt time.Time `json:"processed_at"`
	Error       *string   `json:"error,omitempty"`
}

// LessonStep is one unit of a document's lesson plan
type LessonStep struct {
	DocID     string `gorm:"primaryKey" json:"doc_id"`
	StepIndex int    `gorm:"primaryKey;autoIncrement:false" json:"step_index"`
	Topic     string `json:"topic"`
	Subtopic  string `json:"subtopic"`
	Action    Action `json:"action"` // explain, quiz
}

// TutorState is the persisted learner progress for one (user, document) pair.
// UpdatedAt is owned by the tutor agent, not by gorm.
type TutorState struct {
	UserID       string     `gorm:"primaryKey" json:"user_id"`
	DocID        string     `gorm:"primaryKey" json:"doc_id"`
	StepIndex    int        `json:"step_index"`
	Difficulty   Difficulty `json:"difficulty"`
	LastAction   Action     `json:"last_action"`
	MasteryScore float64    `json:"mastery_score"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// QuizAttempt is an append-only record of a scored answer
type QuizAttempt struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index:idx_attempt_learner" json:"user_id"`
	DocID     string    `gorm:"index:idx_attempt_learner" json:"doc_id"`
	StepIndex int       `json:"step_index"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Score     float64   `json:"score"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

// AutoMigrate runs all migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Document{},
		&ProcessingStatus{},
		&LessonStep{},
		&TutorState{},
		&QuizAttempt{},
	)
}
