// Package repository implements the data access layer.
package repository

import (
	"patrasaar-go/internal/model"

	"gorm.io/gorm"
)

// ChatRepository defines operations on chat sessions.
type ChatRepository interface {
	Create(chat *model.ChatSession) error
	FindByIDForUser(chatID, userID string) (*model.ChatSession, error)
	ListByUser(userID string) ([]model.ChatSession, error)
	UpdateTitle(chatID, title string) error
	Touch(chatID string) error
	DeleteCascade(chatID string) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a ChatRepository backed by gorm.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(chat *model.ChatSession) error {
	return r.db.Create(chat).Error
}

// FindByIDForUser loads a chat only if it belongs to userID, so ownership is
// enforced at the query level.
func (r *chatRepository) FindByIDForUser(chatID, userID string) (*model.ChatSession, error) {
	var chat model.ChatSession
	err := r.db.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) ListByUser(userID string) ([]model.ChatSession, error) {
	var chats []model.ChatSession
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&chats).Error
	return chats, err
}

func (r *chatRepository) UpdateTitle(chatID, title string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", chatID).Update("title", title).Error
}

// Touch bumps the chat's updated_at so listing stays in recency order.
func (r *chatRepository) Touch(chatID string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", chatID).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

// DeleteCascade removes the chat and everything hanging off it in one
// transaction. Vector and object-store cleanup happens before this call.
func (r *chatRepository) DeleteCascade(chatID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id IN (?)",
			tx.Model(&model.Document{}).Select("id").Where("chat_id = ?", chatID),
		).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id IN (?)",
			tx.Model(&model.Document{}).Select("id").Where("chat_id = ?", chatID),
		).Delete(&model.ProcessingJob{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&model.ChatSession{}).Error
	})
}
