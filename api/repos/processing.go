package repos

import (
	"context"

	"github.com/local/pdftutor/api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessingRepo tracks the last processing outcome per document
type ProcessingRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, status *models.ProcessingStatus) error
	Get(ctx context.Context, tx *gorm.DB, docID string) (*models.ProcessingStatus, error)
}

type processingRepo struct {
	db *gorm.DB
}

func NewProcessingRepo(db *gorm.DB) ProcessingRepo {
	return &processingRepo{db: db}
}

func (r *processingRepo) Upsert(ctx context.Context, tx *gorm.DB, status *models.ProcessingStatus) error {
	return pick(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(status).Error
}

func (r *processingRepo) Get(ctx context.Context, tx *gorm.DB, docID string) (*models.ProcessingStatus, error) {
	var status models.ProcessingStatus
	err := pick(tx, r.db).WithContext(ctx).Where("doc_id = ?", docID).First(&status).Error
	return optional(&status, err)
}
