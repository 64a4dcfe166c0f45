package repos

import (
	"context"

	"github.com/local/pdftutor/api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TutorMemoryRepo holds one tutor state row per (user, document)
type TutorMemoryRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID, docID string) (*models.TutorState, error)
	Upsert(ctx context.Context, tx *gorm.DB, state *models.TutorState) error
}

type tutorMemoryRepo struct {
	db *gorm.DB
}

func NewTutorMemoryRepo(db *gorm.DB) TutorMemoryRepo {
	return &tutorMemoryRepo{db: db}
}

func (r *tutorMemoryRepo) Get(ctx context.Context, tx *gorm.DB, userID, docID string) (*models.TutorState, error) {
	var state models.TutorState
	err := pick(tx, r.db).WithContext(ctx).
		Where("user_id = ? AND doc_id = ?", userID, docID).
		First(&state).Error
	return optional(&state, err)
}

func (r *tutorMemoryRepo) Upsert(ctx context.Context, tx *gorm.DB, state *models.TutorState) error {
	return pick(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"step_index", "difficulty", "last_action", "mastery_score", "updated_at"}),
		}).
		Create(state).Error
}
