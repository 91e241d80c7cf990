// Package tasks defines the queue message driving document ingestion.
package tasks

// IngestTask is the payload enqueued when a document is created. Exactly one
// of StorageKey and SourceURL is set.
type IngestTask struct {
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId"`
	ChatID     string `json:"chatId"`
	UserID     string `json:"userId"`
	StorageKey string `json:"storageKey,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	Filename   string `json:"filename"`
	FileType   string `json:"fileType"`
}
