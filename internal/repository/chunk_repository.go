package repository

import (
	"patrasaar-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository defines operations on document chunks.
type ChunkRepository interface {
	BatchCreate(chunks []*model.Chunk) error
	DeleteByDocumentID(documentID string) error
	FindByIDs(ids []string) ([]model.Chunk, error)
	FindIDsByChatID(chatID string) ([]string, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a ChunkRepository backed by gorm.
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) BatchCreate(chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// DeleteByDocumentID clears a document's chunks so re-ingestion after a
// redelivered task cannot accumulate duplicates.
func (r *chunkRepository) DeleteByDocumentID(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

func (r *chunkRepository) FindByIDs(ids []string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if len(ids) == 0 {
		return chunks, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&chunks).Error
	return chunks, err
}

// FindIDsByChatID collects every chunk id under a chat. These double as the
// vector ids to purge from the index on chat deletion.
func (r *chunkRepository) FindIDsByChatID(chatID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.Chunk{}).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.chat_id = ?", chatID).
		Pluck("document_chunks.id", &ids).Error
	return ids, err
}
