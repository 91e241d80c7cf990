package model

import "time"

// Document statuses. The document mirrors its processing job.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Job statuses. Terminal states are exactly ready and failed.
const (
	JobStatusQueued    = "queued"
	JobStatusParsing   = "parsing"
	JobStatusChunking  = "chunking"
	JobStatusEmbedding = "embedding"
	JobStatusReady     = "ready"
	JobStatusFailed    = "failed"
)

// Document is an uploaded file or linked URL attached to a chat.
type Document struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID           string     `gorm:"type:varchar(36);not null;index" json:"chatId"`
	MessageID        string     `gorm:"type:varchar(36)" json:"messageId"`
	UserID           string     `gorm:"type:varchar(36);not null" json:"userId"`
	OriginalFilename string     `gorm:"type:varchar(255);not null" json:"originalFilename"`
	FileType         string     `gorm:"type:varchar(16);not null" json:"fileType"`
	FileSize         int64      `json:"fileSize"`
	StorageKey       string     `gorm:"type:varchar(512)" json:"storageKey,omitempty"`
	SourceURL        string     `gorm:"type:varchar(2048)" json:"sourceUrl,omitempty"`
	RawText          string     `gorm:"type:longtext" json:"-"`
	Status           string     `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	ChunkCount       int        `gorm:"not null;default:0" json:"chunkCount"`
	ErrorMessage     string     `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt      *time.Time `gorm:"default:null" json:"processedAt,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

// ProcessingJob tracks a document through extraction, chunking and embedding.
// At most one job exists per document.
type ProcessingJob struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID   string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"documentId"`
	Status       string    `gorm:"type:varchar(16);not null;default:queued" json:"status"`
	Progress     int       `gorm:"not null;default:0" json:"progress"`
	ErrorMessage string    `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// Chunk is a bounded span of a document's text. Its id doubles as the vector
// id in the index, joining text storage to vector storage.
type Chunk struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string `gorm:"type:varchar(36);not null;index" json:"documentId"`
	ChunkIndex int    `gorm:"not null" json:"chunkIndex"`
	Content    string `gorm:"type:text;not null" json:"content"`
	Section    string `gorm:"type:varchar(64)" json:"section,omitempty"`
	Page       int    `json:"page,omitempty"`
}

func (Chunk) TableName() string {
	return "document_chunks"
}
