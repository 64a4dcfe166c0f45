package repos

import (
	"context"
	"errors"

	"github.com/local/pdftutor/api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepo is the registry of uploaded documents
type DocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, doc *models.Document) error
	Get(ctx context.Context, tx *gorm.DB, docID string) (*models.Document, error)
	FindBySHA256(ctx context.Context, tx *gorm.DB, sha string) (*models.Document, error)
	List(ctx context.Context, tx *gorm.DB) ([]models.Document, error)
}

type documentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) DocumentRepo {
	return &documentRepo{db: db}
}

func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *models.Document) error {
	return pick(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(doc).Error
}

func (r *documentRepo) Get(ctx context.Context, tx *gorm.DB, docID string) (*models.Document, error) {
	var doc models.Document
	err := pick(tx, r.db).WithContext(ctx).Where("doc_id = ?", docID).First(&doc).Error
	return optional(&doc, err)
}

func (r *documentRepo) FindBySHA256(ctx context.Context, tx *gorm.DB, sha string) (*models.Document, error) {
	var doc models.Document
	err := pick(tx, r.db).WithContext(ctx).Where("sha256 = ?", sha).First(&doc).Error
	return optional(&doc, err)
}

// List returns documents newest upload first
func (r *documentRepo) List(ctx context.Context, tx *gorm.DB) ([]models.Document, error) {
	docs := []models.Document{}
	if err := pick(tx, r.db).WithContext(ctx).Order("uploaded_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func pick(tx, db *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// optional maps a missing row to (nil, nil)
func optional[T any](row *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
