package repository

import (
	"patrasaar-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository defines operations on transcript messages.
type MessageRepository interface {
	Create(msg *model.Message) error
	ListByChat(chatID string) ([]model.Message, error)
	FindRecent(chatID string, limit int) ([]model.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a MessageRepository backed by gorm.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// ListByChat returns the full transcript in conversation order.
func (r *messageRepository) ListByChat(chatID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("created_at ASC").Find(&messages).Error
	return messages, err
}

// FindRecent returns the newest limit messages, oldest first, so they can be
// injected into the prompt in conversation order.
func (r *messageRepository) FindRecent(chatID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("created_at DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
