package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/local/pdftutor/api/models"
	"gorm.io/gorm"
)

// QuizAttemptRepo is the append-only log of scored answers
type QuizAttemptRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	ListFor(ctx context.Context, tx *gorm.DB, userID, docID string) ([]models.QuizAttempt, error)
}

type quizAttemptRepo struct {
	db *gorm.DB
}

func NewQuizAttemptRepo(db *gorm.DB) QuizAttemptRepo {
	return &quizAttemptRepo{db: db}
}

func (r *quizAttemptRepo) Insert(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	return pick(tx, r.db).WithContext(ctx).Create(attempt).Error
}

// ListFor returns a learner's attempts on a document, newest first
func (r *quizAttemptRepo) ListFor(ctx context.Context, tx *gorm.DB, userID, docID string) ([]models.QuizAttempt, error) {
	attempts := []models.QuizAttempt{}
	if err := pick(tx, r.db).WithContext(ctx).
		Where("user_id = ? AND doc_id = ?", userID, docID).
		Order("created_at DESC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
