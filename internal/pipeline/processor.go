// Package pipeline drives a document through extraction, chunking, embedding
// and indexing, advancing its processing job through the state machine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"patrasaar-go/internal/chunker"
	"patrasaar-go/internal/model"
	"patrasaar-go/internal/repository"
	"patrasaar-go/pkg/embedding"
	"patrasaar-go/pkg/es"
	"patrasaar-go/pkg/extractor"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/storage"
	"patrasaar-go/pkg/tasks"
)

// DefaultBatchSize bounds embedding batches to the upstream API limit.
const DefaultBatchSize = 50

// ErrNoMeaningfulText is the hard failure for empty extraction results.
var ErrNoMeaningfulText = errors.New("Could not extract meaningful text from the document")

// Processor holds every capability the ingestion pipeline touches. All
// dependencies are injected; nothing is reached through package globals.
type Processor struct {
	extractorClient extractor.Client
	embeddingClient embedding.Client
	vectorIndex     es.Store
	storageClient   storage.Client
	docRepo         repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
	jobRepo         repository.JobRepository
	batchSize       int
}

// NewProcessor creates a Processor. batchSize <= 0 falls back to the default.
func NewProcessor(
	extractorClient extractor.Client,
	embeddingClient embedding.Client,
	vectorIndex es.Store,
	storageClient storage.Client,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	jobRepo repository.JobRepository,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{
		extractorClient: extractorClient,
		embeddingClient: embeddingClient,
		vectorIndex:     vectorIndex,
		storageClient:   storageClient,
		docRepo:         docRepo,
		chunkRepo:       chunkRepo,
		jobRepo:         jobRepo,
		batchSize:       batchSize,
	}
}

// Process runs one ingestion job to a terminal state. Any stage error marks
// both the job and the document failed and is returned to the consumer loop,
// which decides whether the delivery layer retries.
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] starting ingestion, documentId=%s, jobId=%s, file=%s", task.DocumentID, task.JobID, task.Filename)

	if err := p.run(ctx, task); err != nil {
		log.Errorf("[Processor] ingestion failed for document %s: %v", task.DocumentID, err)
		if updErr := p.jobRepo.Update(task.JobID, model.JobStatusFailed, 0, err.Error()); updErr != nil {
			log.Errorf("[Processor] failed to mark job failed: %v", updErr)
		}
		if updErr := p.docRepo.UpdateStatus(task.DocumentID, model.DocStatusFailed, err.Error()); updErr != nil {
			log.Errorf("[Processor] failed to mark document failed: %v", updErr)
		}
		return err
	}

	log.Infof("[Processor] ingestion completed, documentId=%s", task.DocumentID)
	return nil
}

func (p *Processor) run(ctx context.Context, task tasks.IngestTask) error {
	// Stage 1: extraction.
	if err := p.jobRepo.Update(task.JobID, model.JobStatusParsing, 10, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := p.docRepo.UpdateStatus(task.DocumentID, model.DocStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	rawText, err := p.extractText(ctx, task)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(rawText)) < 10 {
		return ErrNoMeaningfulText
	}

	if err := p.jobRepo.Update(task.JobID, model.JobStatusParsing, 30, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	// Raw text is stored before chunking so it stays inspectable even if a
	// later stage fails.
	if err := p.docRepo.SetRawText(task.DocumentID, rawText); err != nil {
		return fmt.Errorf("failed to store raw text: %w", err)
	}

	// Stage 2: chunking.
	if err := p.jobRepo.Update(task.JobID, model.JobStatusChunking, 40, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	chunks := chunker.Split(rawText)
	log.Infof("[Processor] produced %d chunks for document %s", len(chunks), task.DocumentID)
	if len(chunks) == 0 {
		return errors.New("no chunks produced from document text")
	}

	// Delete-then-insert keeps redelivered tasks idempotent: a retried job
	// replaces its chunks and vectors instead of accumulating duplicates.
	if err := p.chunkRepo.DeleteByDocumentID(task.DocumentID); err != nil {
		return fmt.Errorf("failed to clear existing chunks: %w", err)
	}
	if err := p.vectorIndex.DeleteByDocumentID(ctx, task.DocumentID); err != nil {
		return fmt.Errorf("failed to clear existing vectors: %w", err)
	}

	records := make([]*model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, &model.Chunk{
			ID:         c.ID,
			DocumentID: task.DocumentID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Section:    c.Section,
			Page:       c.Page,
		})
	}
	if err := p.chunkRepo.BatchCreate(records); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.docRepo.SetChunkCount(task.DocumentID, len(chunks)); err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}

	if err := p.jobRepo.Update(task.JobID, model.JobStatusChunking, 60, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	// Stage 3: embedding and indexing, in batches.
	if p.embeddingClient == nil {
		return errors.New("embedding service is not configured")
	}
	if err := p.jobRepo.Update(task.JobID, model.JobStatusEmbedding, 70, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := p.embeddingClient.CreateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}

		docs := make([]model.ChunkVector, len(batch))
		for i, c := range batch {
			docs[i] = model.ChunkVector{
				ChunkID:    c.ID,
				DocumentID: task.DocumentID,
				ChatID:     task.ChatID,
				UserID:     task.UserID,
				ChunkIndex: c.Index,
				Section:    c.Section,
				Page:       c.Page,
				Vector:     vectors[i],
			}
		}
		if err := p.vectorIndex.UpsertChunks(ctx, docs); err != nil {
			return fmt.Errorf("failed to index batch starting at chunk %d: %w", start, err)
		}
	}

	if err := p.jobRepo.Update(task.JobID, model.JobStatusEmbedding, 90, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	// Terminal: ready.
	if err := p.jobRepo.Update(task.JobID, model.JobStatusReady, 100, ""); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := p.docRepo.MarkReady(task.DocumentID); err != nil {
		return fmt.Errorf("failed to mark document ready: %w", err)
	}
	return nil
}

// extractText resolves raw text from either the stored object or the source
// URL. Exactly one of the two is set on a well-formed task.
func (p *Processor) extractText(ctx context.Context, task tasks.IngestTask) (string, error) {
	if task.StorageKey != "" {
		data, err := p.storageClient.Get(ctx, task.StorageKey)
		if err != nil {
			return "", fmt.Errorf("failed to fetch stored file: %w", err)
		}

		switch task.FileType {
		case "txt":
			return string(data), nil
		case "pdf", "doc", "docx":
			text, err := p.extractorClient.ExtractDocument(ctx, data, task.FileType)
			if err != nil {
				// Best effort: some "binary" uploads are really plain text.
				log.Warnf("[Processor] extractor failed for %s, falling back to raw decode: %v", task.Filename, err)
				return string(data), nil
			}
			return text, nil
		default:
			return string(data), nil
		}
	}

	if task.SourceURL != "" {
		text, err := p.extractorClient.ExtractURL(ctx, task.SourceURL)
		if err != nil {
			return "", err
		}
		return text, nil
	}

	return "", errors.New("task carries neither a storage key nor a source URL")
}
