// Package model defines the database models and shared DTOs.
package model

import "time"

// ChatSession is one conversation owned by a user. Deleting it cascades to
// its messages, documents, chunks, jobs and index vectors.
type ChatSession struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"userId"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ChatSession) TableName() string {
	return "chats"
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry. Rows are immutable once written;
// conversation order is creation order.
type Message struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID    string    `gorm:"type:varchar(36);not null;index" json:"chatId"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Citations string    `gorm:"type:text" json:"citations,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// ChatMessage is a role/content pair as sent to the completion model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
