package repos

import (
	"context"

	"github.com/local/pdftutor/api/models"
	"gorm.io/gorm"
)

// LessonPlanRepo stores the lesson plan of each document
type LessonPlanRepo interface {
	Save(ctx context.Context, docID string, steps []models.LessonStep) error
	Load(ctx context.Context, tx *gorm.DB, docID string) ([]models.LessonStep, error)
}

type lessonPlanRepo struct {
	db *gorm.DB
}

func NewLessonPlanRepo(db *gorm.DB) LessonPlanRepo {
	return &lessonPlanRepo{db: db}
}

// Save replaces the document's plan in one transaction
func (r *lessonPlanRepo) Save(ctx context.Context, docID string, steps []models.LessonStep) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", docID).Delete(&models.LessonStep{}).Error; err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		rows := make([]models.LessonStep, len(steps))
		for i, s := range steps {
			s.DocID = docID
			rows[i] = s
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// Load returns the plan ordered by step index
func (r *lessonPlanRepo) Load(ctx context.Context, tx *gorm.DB, docID string) ([]models.LessonStep, error) {
	steps := []models.LessonStep{}
	if err := pick(tx, r.db).WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("step_index ASC").
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}
