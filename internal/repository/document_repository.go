package repository

import (
	"time"

	"patrasaar-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository defines operations on documents.
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindByChatID(chatID string) ([]model.Document, error)
	UpdateStatus(id, status, errorMessage string) error
	SetRawText(id, rawText string) error
	SetChunkCount(id string, count int) error
	MarkReady(id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a DocumentRepository backed by gorm.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByChatID(chatID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("chat_id = ?", chatID).Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateStatus(id, status, errorMessage string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}).Error
}

// SetRawText persists the extracted text before chunking, keeping it
// inspectable even if a later stage fails.
func (r *documentRepository) SetRawText(id, rawText string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("raw_text", rawText).Error
}

func (r *documentRepository) SetChunkCount(id string, count int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("chunk_count", count).Error
}

func (r *documentRepository) MarkReady(id string) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.DocStatusReady,
		"processed_at": &now,
	}).Error
}
