// Package handler contains the HTTP controllers.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"patrasaar-go/internal/middleware"
	"patrasaar-go/internal/service"
	"patrasaar-go/pkg/log"
)

// ChatHandler serves the chat lifecycle routes.
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type createChatRequest struct {
	Title string `json:"title"`
}

type updateChatRequest struct {
	Title string `json:"title" binding:"required"`
}

// List returns the caller's chats, most recently active first.
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chatService.ListChats(middleware.UserID(c))
	if err != nil {
		log.Errorf("failed to list chats: %v", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chats})
}

// Create opens a new chat.
func (h *ChatHandler) Create(c *gin.Context) {
	// An empty or absent body is allowed; the title defaults.
	var req createChatRequest
	_ = c.ShouldBindJSON(&req)

	chat, err := h.chatService.CreateChat(middleware.UserID(c), req.Title)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTitle) {
			badRequest(c, err.Error(), "INVALID_INPUT")
			return
		}
		log.Errorf("failed to create chat: %v", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": chat})
}

// Get returns one chat together with its full transcript.
func (h *ChatHandler) Get(c *gin.Context) {
	chat, messages, err := h.chatService.GetChat(c.Param("id"), middleware.UserID(c))
	if err != nil {
		notFound(c, "Chat not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"chat": chat, "messages": messages}})
}

// Rename updates a chat's title.
func (h *ChatHandler) Rename(c *gin.Context) {
	var req updateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Title is required", "INVALID_INPUT")
		return
	}

	chatID := c.Param("id")
	userID := middleware.UserID(c)
	if err := h.chatService.RenameChat(chatID, userID, req.Title); err != nil {
		if errors.Is(err, service.ErrInvalidTitle) {
			badRequest(c, err.Error(), "INVALID_INPUT")
			return
		}
		notFound(c, "Chat not found")
		return
	}

	chat, _, err := h.chatService.GetChat(chatID, userID)
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chat})
}

// Delete removes a chat and everything attached to it.
func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.chatService.DeleteChat(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		notFound(c, "Chat not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func badRequest(c *gin.Context, message, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": message, "code": code}})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": message, "code": "NOT_FOUND"}})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Internal server error", "code": "INTERNAL"}})
}
