package model

// ChunkVector is the document shape stored in the Elasticsearch index. The
// _id of each document is the chunk id, so vector ids stay a subset of chunk
// ids for the same document.
type ChunkVector struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	ChatID     string    `json:"chat_id"`
	UserID     string    `json:"user_id"`
	ChunkIndex int       `json:"chunk_index"`
	Section    string    `json:"section"`
	Page       int       `json:"page"`
	Vector     []float32 `json:"vector"`
}

// VectorMatch is one kNN hit returned by the index.
type VectorMatch struct {
	ChunkID string
	Score   float64
}

// RetrievedChunk is a resolved context passage handed to prompt assembly.
type RetrievedChunk struct {
	Content string
	Section string
	Page    int
}
