package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patrasaar-go/internal/model"
	"patrasaar-go/pkg/tasks"
)

type fakeJobStore struct {
	jobs []*model.ProcessingJob
}

func (f *fakeJobStore) Create(job *model.ProcessingJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobStore) FindByIDForUser(jobID, userID string) (*model.ProcessingJob, error) {
	for _, j := range f.jobs {
		if j.ID == jobID {
			return j, nil
		}
	}
	return nil, errors.New("job not found")
}

func (f *fakeJobStore) Update(jobID, status string, progress int, errorMessage string) error {
	return nil
}

type putRecordingStore struct {
	fakeObjectStore
	putKeys []string
}

func (p *putRecordingStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p.putKeys = append(p.putKeys, key)
	return nil
}

func TestCreateFromUpload(t *testing.T) {
	docRepo := &fakeDocumentRepo{}
	jobRepo := &fakeJobStore{}
	objects := &putRecordingStore{}
	var enqueued []tasks.IngestTask

	svc := NewDocumentService(docRepo, jobRepo, objects, func(task tasks.IngestTask) error {
		enqueued = append(enqueued, task)
		return nil
	})

	doc, job, err := svc.CreateFromUpload(context.Background(), UploadInput{
		ChatID:        "chat-1",
		UserID:        "user-1",
		UserMessageID: "msg-1",
		Filename:      "lease.pdf",
		Data:          []byte("%PDF-1.4"),
	})
	require.NoError(t, err)

	wantKey := fmt.Sprintf("user-1/chat-1/%s/lease.pdf", doc.ID)
	assert.Equal(t, []string{wantKey}, objects.putKeys)
	assert.Equal(t, wantKey, doc.StorageKey)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, int64(8), doc.FileSize)
	assert.Equal(t, model.DocStatusPending, doc.Status)

	assert.Equal(t, doc.ID, job.DocumentID)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)

	require.Len(t, enqueued, 1)
	assert.Equal(t, doc.ID, enqueued[0].DocumentID)
	assert.Equal(t, job.ID, enqueued[0].JobID)
	assert.Equal(t, wantKey, enqueued[0].StorageKey)
	assert.Empty(t, enqueued[0].SourceURL)
}

func TestCreateFromURL(t *testing.T) {
	docRepo := &fakeDocumentRepo{}
	jobRepo := &fakeJobStore{}
	var enqueued []tasks.IngestTask

	svc := NewDocumentService(docRepo, jobRepo, &putRecordingStore{}, func(task tasks.IngestTask) error {
		enqueued = append(enqueued, task)
		return nil
	})

	doc, job, err := svc.CreateFromURL(context.Background(), URLInput{
		ChatID:        "chat-1",
		UserID:        "user-1",
		UserMessageID: "msg-1",
		SourceURL:     "https://example.com/statute.html",
	})
	require.NoError(t, err)

	assert.Equal(t, "url", doc.FileType)
	assert.Equal(t, "https://example.com/statute.html", doc.SourceURL)
	assert.Empty(t, doc.StorageKey)
	assert.Equal(t, model.JobStatusQueued, job.Status)

	require.Len(t, enqueued, 1)
	assert.Equal(t, "https://example.com/statute.html", enqueued[0].SourceURL)
	assert.Empty(t, enqueued[0].StorageKey)
	assert.Equal(t, "url", enqueued[0].FileType)
}

func TestCreateFromUploadSurvivesEnqueueFailure(t *testing.T) {
	docRepo := &fakeDocumentRepo{}
	jobRepo := &fakeJobStore{}

	svc := NewDocumentService(docRepo, jobRepo, &putRecordingStore{}, func(task tasks.IngestTask) error {
		return errors.New("broker unreachable")
	})

	doc, job, err := svc.CreateFromUpload(context.Background(), UploadInput{
		ChatID:   "chat-1",
		UserID:   "user-1",
		Filename: "notes.txt",
		Data:     []byte("some text"),
	})
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Equal(t, model.JobStatusQueued, job.Status)
}
