package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"patrasaar-go/internal/middleware"
	"patrasaar-go/internal/model"
	"patrasaar-go/internal/service"
	"patrasaar-go/pkg/log"
)

// MessageHandler serves message posting, answer streaming and job polling.
type MessageHandler struct {
	chatService     service.ChatService
	documentService service.DocumentService
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(chatService service.ChatService, documentService service.DocumentService) *MessageHandler {
	return &MessageHandler{chatService: chatService, documentService: documentService}
}

type sendMessageRequest struct {
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Send accepts a user turn: plain text, text plus a file, or text plus a URL.
// A document attachment is acknowledged with 202 and processed in the
// background; a pure text turn streams the assistant's answer back.
func (h *MessageHandler) Send(c *gin.Context) {
	userID := middleware.UserID(c)
	chatID := c.Param("id")

	if _, _, err := h.chatService.GetChat(chatID, userID); err != nil {
		notFound(c, "Chat not found")
		return
	}

	var (
		userText  string
		sourceURL string
		fileName  string
		fileData  []byte
		hasFile   bool
	)

	if strings.Contains(c.ContentType(), "multipart/form-data") {
		userText = c.PostForm("content")
		sourceURL = c.PostForm("url")

		fileHeader, err := c.FormFile("file")
		if err == nil && fileHeader != nil {
			hasFile = true
			fileName = fileHeader.Filename

			if !model.IsAllowedExtension(fileName) {
				badRequest(c, "File type not supported. Use PDF, TXT, DOC, or DOCX.", "INVALID_FILE_TYPE")
				return
			}
			if !model.IsWithinSizeLimit(fileHeader.Size) {
				badRequest(c, fmt.Sprintf("File too large. Maximum size is %dMB.", model.MaxFileSizeBytes/1024/1024), "FILE_TOO_LARGE")
				return
			}

			f, err := fileHeader.Open()
			if err != nil {
				internalError(c)
				return
			}
			fileData, err = io.ReadAll(f)
			f.Close()
			if err != nil {
				internalError(c)
				return
			}
		}
	} else {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", "INVALID_INPUT")
			return
		}
		userText = req.Content
		sourceURL = req.URL
	}

	if userText == "" && !hasFile && sourceURL == "" {
		badRequest(c, "Provide text, a file, or a URL", "INVALID_INPUT")
		return
	}

	// The user's turn is persisted before any processing or streaming, so the
	// transcript reflects it even if everything after fails.
	displayContent := userText
	if hasFile {
		if userText != "" {
			displayContent = userText + "\n[Uploaded: " + fileName + "]"
		} else {
			displayContent = "[Uploaded: " + fileName + "]"
		}
	}
	userMessage, err := h.chatService.PostUserMessage(chatID, displayContent)
	if err != nil {
		log.Errorf("failed to persist user message: %v", err)
		internalError(c)
		return
	}

	if hasFile {
		doc, job, err := h.documentService.CreateFromUpload(c.Request.Context(), service.UploadInput{
			ChatID:        chatID,
			UserID:        userID,
			UserMessageID: userMessage.ID,
			Filename:      fileName,
			Data:          fileData,
		})
		if err != nil {
			log.Errorf("failed to attach uploaded file: %v", err)
			internalError(c)
			return
		}
		h.acceptDocument(c, userMessage.ID, doc.ID, job.ID, userText != "")
		return
	}

	if sourceURL != "" {
		doc, job, err := h.documentService.CreateFromURL(c.Request.Context(), service.URLInput{
			ChatID:        chatID,
			UserID:        userID,
			UserMessageID: userMessage.ID,
			SourceURL:     sourceURL,
		})
		if err != nil {
			log.Errorf("failed to attach linked document: %v", err)
			internalError(c)
			return
		}
		h.acceptDocument(c, userMessage.ID, doc.ID, job.ID, userText != "")
		return
	}

	emitter := newSSEEmitter(c)
	degraded, err := h.chatService.StreamAnswer(c.Request.Context(), chatID, userID, userText, emitter)
	if err != nil {
		log.Errorf("answer pipeline failed for chat %s: %v", chatID, err)
		if !emitter.started {
			internalError(c)
		}
		return
	}
	if degraded != nil {
		c.JSON(http.StatusOK, gin.H{"data": degraded})
	}
}

// acceptDocument acknowledges a queued attachment. The client polls the job
// and re-queries once it is ready.
func (h *MessageHandler) acceptDocument(c *gin.Context, userMessageID, documentID, jobID string, hasQuery bool) {
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{
		"userMessageId": userMessageID,
		"documentId":    documentID,
		"jobId":         jobID,
		"hasQuery":      hasQuery,
		"status":        "Document queued for processing",
	}})
}

// JobStatus returns one processing job, scoped to the caller's documents.
func (h *MessageHandler) JobStatus(c *gin.Context) {
	job, err := h.documentService.GetJobForUser(c.Param("jobId"), middleware.UserID(c))
	if err != nil {
		notFound(c, "Job not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// sseEmitter frames answer events as server-sent events. Headers go out
// lazily on the first event, so a degraded answer can still use plain JSON.
type sseEmitter struct {
	c       *gin.Context
	started bool
}

func newSSEEmitter(c *gin.Context) *sseEmitter {
	return &sseEmitter{c: c}
}

func (e *sseEmitter) emit(payload interface{}) error {
	if !e.started {
		e.c.Header("Content-Type", "text/event-stream")
		e.c.Header("Cache-Control", "no-cache")
		e.c.Header("Connection", "keep-alive")
		e.started = true
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.c.Writer, "data: %s\n\n", b); err != nil {
		return err
	}
	e.c.Writer.Flush()
	return nil
}

func (e *sseEmitter) EmitToken(content string) error {
	return e.emit(gin.H{"type": "token", "content": content})
}

func (e *sseEmitter) EmitError(message string) error {
	return e.emit(gin.H{"type": "error", "message": message})
}

func (e *sseEmitter) EmitDone(messageID string) error {
	return e.emit(gin.H{"type": "done", "messageId": messageID})
}
