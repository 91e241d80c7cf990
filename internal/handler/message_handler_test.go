package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patrasaar-go/internal/model"
	"patrasaar-go/internal/service"
)

type fakeChatService struct {
	userMessages []string
	degraded     *service.DegradedAnswer
	tokens       []string
}

func (f *fakeChatService) CreateChat(userID, title string) (*model.ChatSession, error) {
	return &model.ChatSession{ID: "chat-1", UserID: userID, Title: title}, nil
}

func (f *fakeChatService) ListChats(userID string) ([]model.ChatSession, error) { return nil, nil }

func (f *fakeChatService) GetChat(chatID, userID string) (*model.ChatSession, []model.Message, error) {
	if chatID != "chat-1" {
		return nil, nil, errors.New("chat not found")
	}
	return &model.ChatSession{ID: chatID, UserID: userID}, nil, nil
}

func (f *fakeChatService) RenameChat(chatID, userID, title string) error { return nil }

func (f *fakeChatService) DeleteChat(ctx context.Context, chatID, userID string) error { return nil }

func (f *fakeChatService) PostUserMessage(chatID, content string) (*model.Message, error) {
	f.userMessages = append(f.userMessages, content)
	return &model.Message{ID: "msg-1", ChatID: chatID, Role: model.RoleUser, Content: content}, nil
}

func (f *fakeChatService) StreamAnswer(ctx context.Context, chatID, userID, query string, emitter service.StreamEmitter) (*service.DegradedAnswer, error) {
	if f.degraded != nil {
		return f.degraded, nil
	}
	for _, tok := range f.tokens {
		if err := emitter.EmitToken(tok); err != nil {
			return nil, err
		}
	}
	if err := emitter.EmitDone("assistant-1"); err != nil {
		return nil, err
	}
	return nil, nil
}

type fakeDocumentService struct {
	uploads []service.UploadInput
	urls    []service.URLInput
}

func (f *fakeDocumentService) CreateFromUpload(ctx context.Context, in service.UploadInput) (*model.Document, *model.ProcessingJob, error) {
	f.uploads = append(f.uploads, in)
	return &model.Document{ID: "doc-1"}, &model.ProcessingJob{ID: "job-1", DocumentID: "doc-1"}, nil
}

func (f *fakeDocumentService) CreateFromURL(ctx context.Context, in service.URLInput) (*model.Document, *model.ProcessingJob, error) {
	f.urls = append(f.urls, in)
	return &model.Document{ID: "doc-1"}, &model.ProcessingJob{ID: "job-1", DocumentID: "doc-1"}, nil
}

func (f *fakeDocumentService) GetJobForUser(jobID, userID string) (*model.ProcessingJob, error) {
	if jobID != "job-1" {
		return nil, errors.New("job not found")
	}
	return &model.ProcessingJob{ID: jobID, DocumentID: "doc-1", Status: model.JobStatusQueued}, nil
}

func newTestRouter(chatSvc *fakeChatService, docSvc *fakeDocumentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
	})

	h := NewMessageHandler(chatSvc, docSvc)
	r.POST("/api/v1/chats/:id/messages", h.Send)
	r.GET("/api/v1/jobs/:jobId/status", h.JobStatus)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestSendTextQueryStreamsAnswer(t *testing.T) {
	chatSvc := &fakeChatService{tokens: []string{"Hello", " there"}}
	r := newTestRouter(chatSvc, &fakeDocumentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages",
		strings.NewReader(`{"content":"What does clause 4 mean?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"content":"Hello","type":"token"}`)
	assert.Contains(t, body, `data: {"messageId":"assistant-1","type":"done"}`)

	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	assert.Contains(t, frames[len(frames)-1], `"type":"done"`)

	require.Len(t, chatSvc.userMessages, 1)
	assert.Equal(t, "What does clause 4 mean?", chatSvc.userMessages[0])
}

func TestSendRejectsUnsupportedFileBeforeAnyWrite(t *testing.T) {
	chatSvc := &fakeChatService{}
	docSvc := &fakeDocumentService{}
	r := newTestRouter(chatSvc, docSvc)

	body, contentType := multipartBody(t, map[string]string{"content": "check this"}, "file", "malware.exe", []byte("xx"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_FILE_TYPE")
	assert.Empty(t, chatSvc.userMessages)
	assert.Empty(t, docSvc.uploads)
}

func TestSendUploadQueuesDocument(t *testing.T) {
	chatSvc := &fakeChatService{}
	docSvc := &fakeDocumentService{}
	r := newTestRouter(chatSvc, docSvc)

	body, contentType := multipartBody(t, map[string]string{"content": "summarize this"}, "file", "lease.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data struct {
			UserMessageID string `json:"userMessageId"`
			DocumentID    string `json:"documentId"`
			JobID         string `json:"jobId"`
			HasQuery      bool   `json:"hasQuery"`
			Status        string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "msg-1", resp.Data.UserMessageID)
	assert.Equal(t, "doc-1", resp.Data.DocumentID)
	assert.Equal(t, "job-1", resp.Data.JobID)
	assert.True(t, resp.Data.HasQuery)
	assert.Equal(t, "Document queued for processing", resp.Data.Status)

	require.Len(t, chatSvc.userMessages, 1)
	assert.Equal(t, "summarize this\n[Uploaded: lease.pdf]", chatSvc.userMessages[0])

	require.Len(t, docSvc.uploads, 1)
	assert.Equal(t, "lease.pdf", docSvc.uploads[0].Filename)
	assert.Equal(t, "msg-1", docSvc.uploads[0].UserMessageID)
}

func TestSendURLQueuesDocument(t *testing.T) {
	chatSvc := &fakeChatService{}
	docSvc := &fakeDocumentService{}
	r := newTestRouter(chatSvc, docSvc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages",
		strings.NewReader(`{"url":"https://example.com/statute.html"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, docSvc.urls, 1)
	assert.Equal(t, "https://example.com/statute.html", docSvc.urls[0].SourceURL)

	var resp struct {
		Data struct {
			HasQuery bool `json:"hasQuery"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.HasQuery)
}

func TestSendRequiresSomeInput(t *testing.T) {
	r := newTestRouter(&fakeChatService{}, &fakeDocumentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestSendUnknownChat(t *testing.T) {
	r := newTestRouter(&fakeChatService{}, &fakeDocumentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/nope/messages", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendDegradedModeReturnsJSON(t *testing.T) {
	chatSvc := &fakeChatService{degraded: &service.DegradedAnswer{
		MessageID: "assistant-1",
		Content:   "I am unable to process your query right now. " + model.LegalDisclaimer,
	}}
	r := newTestRouter(chatSvc, &fakeDocumentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/chat-1/messages", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp struct {
		Data service.DegradedAnswer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "assistant-1", resp.Data.MessageID)
	assert.Contains(t, resp.Data.Content, model.LegalDisclaimer)
}

func TestJobStatus(t *testing.T) {
	r := newTestRouter(&fakeChatService{}, &fakeDocumentService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing/status", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
