package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/google/uuid"

	"patrasaar-go/internal/model"
	"patrasaar-go/internal/repository"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/storage"
	"patrasaar-go/pkg/tasks"
)

// EnqueueFunc hands an ingestion task to the queue.
type EnqueueFunc func(task tasks.IngestTask) error

// UploadInput describes a file attached to a user message.
type UploadInput struct {
	ChatID        string
	UserID        string
	UserMessageID string
	Filename      string
	Data          []byte
}

// URLInput describes a linked document attached to a user message.
type URLInput struct {
	ChatID        string
	UserID        string
	UserMessageID string
	SourceURL     string
}

// DocumentService creates documents and their processing jobs and hands the
// work to the ingestion queue.
type DocumentService interface {
	CreateFromUpload(ctx context.Context, in UploadInput) (*model.Document, *model.ProcessingJob, error)
	CreateFromURL(ctx context.Context, in URLInput) (*model.Document, *model.ProcessingJob, error)
	GetJobForUser(jobID, userID string) (*model.ProcessingJob, error)
}

type documentService struct {
	docRepo       repository.DocumentRepository
	jobRepo       repository.JobRepository
	storageClient storage.Client
	enqueue       EnqueueFunc
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(
	docRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
	storageClient storage.Client,
	enqueue EnqueueFunc,
) DocumentService {
	return &documentService{
		docRepo:       docRepo,
		jobRepo:       jobRepo,
		storageClient: storageClient,
		enqueue:       enqueue,
	}
}

// CreateFromUpload stores the file, records the document and its queued job,
// then enqueues the ingestion task. The caller validates the file first.
func (s *documentService) CreateFromUpload(ctx context.Context, in UploadInput) (*model.Document, *model.ProcessingJob, error) {
	documentID := uuid.NewString()
	ext := model.FileExtension(in.Filename)
	storageKey := fmt.Sprintf("%s/%s/%s/%s", in.UserID, in.ChatID, documentID, in.Filename)

	contentType := mime.TypeByExtension(filepath.Ext(in.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storageClient.Put(ctx, storageKey, in.Data, contentType); err != nil {
		return nil, nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	doc := &model.Document{
		ID:               documentID,
		ChatID:           in.ChatID,
		MessageID:        in.UserMessageID,
		UserID:           in.UserID,
		OriginalFilename: in.Filename,
		FileType:         ext,
		FileSize:         int64(len(in.Data)),
		StorageKey:       storageKey,
		Status:           model.DocStatusPending,
	}
	job, err := s.createRecords(doc)
	if err != nil {
		return nil, nil, err
	}

	s.enqueueTask(tasks.IngestTask{
		DocumentID: doc.ID,
		JobID:      job.ID,
		ChatID:     in.ChatID,
		UserID:     in.UserID,
		StorageKey: storageKey,
		Filename:   in.Filename,
		FileType:   ext,
	})
	return doc, job, nil
}

// CreateFromURL records a linked document and enqueues its fetch.
func (s *documentService) CreateFromURL(ctx context.Context, in URLInput) (*model.Document, *model.ProcessingJob, error) {
	doc := &model.Document{
		ID:               uuid.NewString(),
		ChatID:           in.ChatID,
		MessageID:        in.UserMessageID,
		UserID:           in.UserID,
		OriginalFilename: in.SourceURL,
		FileType:         "url",
		SourceURL:        in.SourceURL,
		Status:           model.DocStatusPending,
	}
	job, err := s.createRecords(doc)
	if err != nil {
		return nil, nil, err
	}

	s.enqueueTask(tasks.IngestTask{
		DocumentID: doc.ID,
		JobID:      job.ID,
		ChatID:     in.ChatID,
		UserID:     in.UserID,
		SourceURL:  in.SourceURL,
		Filename:   in.SourceURL,
		FileType:   "url",
	})
	return doc, job, nil
}

func (s *documentService) createRecords(doc *model.Document) (*model.ProcessingJob, error) {
	if err := s.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	job := &model.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     model.JobStatusQueued,
		Progress:   0,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create processing job: %w", err)
	}
	return job, nil
}

// enqueueTask is best effort: the document and job already exist, and a job
// stuck in queued is visible to the poller.
func (s *documentService) enqueueTask(task tasks.IngestTask) {
	if err := s.enqueue(task); err != nil {
		log.Errorf("[DocumentService] failed to enqueue ingestion task for document %s: %v", task.DocumentID, err)
	}
}

func (s *documentService) GetJobForUser(jobID, userID string) (*model.ProcessingJob, error) {
	return s.jobRepo.FindByIDForUser(jobID, userID)
}
