package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"patrasaar-go/internal/service"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler serves the websocket variant of the answer stream. Browsers
// that cannot consume server-sent events use this endpoint instead; the
// event frames are identical.
type StreamHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(chatService service.ChatService, jwtManager *token.JWTManager) *StreamHandler {
	return &StreamHandler{chatService: chatService, jwtManager: jwtManager}
}

type streamQuery struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// Handle authenticates via the path token, upgrades the connection and then
// answers one query per incoming frame.
func (h *StreamHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token", "code": "UNAUTHORIZED"}})
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Infof("websocket stream established for user %s", userID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("websocket read failed: %v", err)
			break
		}

		var query streamQuery
		if err := json.Unmarshal(message, &query); err != nil || query.ChatID == "" || query.Content == "" {
			h.writeFrame(conn, gin.H{"type": "error", "message": "Expected {chatId, content}"})
			continue
		}

		if _, _, err := h.chatService.GetChat(query.ChatID, userID); err != nil {
			h.writeFrame(conn, gin.H{"type": "error", "message": "Chat not found"})
			continue
		}

		if _, err := h.chatService.PostUserMessage(query.ChatID, query.Content); err != nil {
			log.Errorf("failed to persist user message: %v", err)
			h.writeFrame(conn, gin.H{"type": "error", "message": "Failed to save message"})
			continue
		}

		emitter := &wsEmitter{conn: conn}
		degraded, err := h.chatService.StreamAnswer(c.Request.Context(), query.ChatID, userID, query.Content, emitter)
		if err != nil {
			log.Errorf("websocket answer pipeline failed: %v", err)
			break
		}
		if degraded != nil {
			h.writeFrame(conn, gin.H{"data": degraded})
		}
	}
}

func (h *StreamHandler) writeFrame(conn *websocket.Conn, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("websocket write failed: %v", err)
	}
}

type wsEmitter struct {
	conn *websocket.Conn
}

func (e *wsEmitter) emit(payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return e.conn.WriteMessage(websocket.TextMessage, b)
}

func (e *wsEmitter) EmitToken(content string) error {
	return e.emit(gin.H{"type": "token", "content": content})
}

func (e *wsEmitter) EmitError(message string) error {
	return e.emit(gin.H{"type": "error", "message": message})
}

func (e *wsEmitter) EmitDone(messageID string) error {
	return e.emit(gin.H{"type": "done", "messageId": messageID})
}
