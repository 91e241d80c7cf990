// Package service implements the application use cases on top of the
// repositories and external capability clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"patrasaar-go/internal/config"
	"patrasaar-go/internal/model"
	"patrasaar-go/internal/repository"
	"patrasaar-go/pkg/embedding"
	"patrasaar-go/pkg/es"
	"patrasaar-go/pkg/llm"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/storage"
)

const (
	// DefaultChatTitle is assigned when a chat is created without one.
	DefaultChatTitle = "New Chat"

	// MaxChatTitleLength caps user-supplied titles.
	MaxChatTitleLength = 200

	// RetrievalTopK is how many nearest vectors the answer pipeline pulls in.
	RetrievalTopK = 10

	// HistoryFetchLimit is how many recent messages are loaded per query.
	HistoryFetchLimit = 10

	// HistoryPromptLimit is how many of those make it into the prompt.
	HistoryPromptLimit = 8
)

var ErrInvalidTitle = errors.New("title must be between 1 and 200 characters")

const systemPromptHeader = `You are PatraSaar, an AI assistant specialized in simplifying Indian legal documents.
Your role is to help users understand legal text. You do NOT provide legal advice.`

const defaultPromptRules = `1. Explain legal terms in simple, everyday language.
2. Every claim must cite the specific section, clause, or page from the provided context using [N] notation.
3. If uncertain, say "I'm not certain about this based on the document."
4. Always end with: "%s"
5. Highlight risks and obligations clearly.
6. Format responses with clear headings and bullet points.`

const defaultNoContextText = "No document context available. Answer based on general legal knowledge if possible."

// StreamEmitter receives answer events in order. EmitDone is always the last
// call for a given stream.
type StreamEmitter interface {
	EmitToken(content string) error
	EmitError(message string) error
	EmitDone(messageID string) error
}

// DegradedAnswer is returned instead of a token stream when the embedding
// capability is unavailable. The message is already persisted.
type DegradedAnswer struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// ChatService covers the chat lifecycle and the retrieval-augmented answer
// pipeline.
type ChatService interface {
	CreateChat(userID, title string) (*model.ChatSession, error)
	ListChats(userID string) ([]model.ChatSession, error)
	GetChat(chatID, userID string) (*model.ChatSession, []model.Message, error)
	RenameChat(chatID, userID, title string) error
	DeleteChat(ctx context.Context, chatID, userID string) error
	PostUserMessage(chatID, content string) (*model.Message, error)

	// StreamAnswer runs the full answer pipeline for an already-persisted user
	// query. When retrieval is unavailable it returns a DegradedAnswer and the
	// emitter is never called; otherwise events flow through the emitter and
	// the returned answer is nil.
	StreamAnswer(ctx context.Context, chatID, userID, query string, emitter StreamEmitter) (*DegradedAnswer, error)
}

type chatService struct {
	chatRepo        repository.ChatRepository
	messageRepo     repository.MessageRepository
	docRepo         repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
	vectorIndex     es.Store
	storageClient   storage.Client
	embeddingClient embedding.Client
	llmClient       llm.Client
	llmCfg          config.LLMConfig
}

// NewChatService creates a ChatService. embeddingClient may be nil, which
// puts every answer on the degraded path.
func NewChatService(
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	vectorIndex es.Store,
	storageClient storage.Client,
	embeddingClient embedding.Client,
	llmClient llm.Client,
	llmCfg config.LLMConfig,
) ChatService {
	return &chatService{
		chatRepo:        chatRepo,
		messageRepo:     messageRepo,
		docRepo:         docRepo,
		chunkRepo:       chunkRepo,
		vectorIndex:     vectorIndex,
		storageClient:   storageClient,
		embeddingClient: embeddingClient,
		llmClient:       llmClient,
		llmCfg:          llmCfg,
	}
}

func (s *chatService) CreateChat(userID, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultChatTitle
	}
	if len(title) > MaxChatTitleLength {
		return nil, ErrInvalidTitle
	}

	chat := &model.ChatSession{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	if err := s.chatRepo.Create(chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func (s *chatService) ListChats(userID string) ([]model.ChatSession, error) {
	return s.chatRepo.ListByUser(userID)
}

func (s *chatService) GetChat(chatID, userID string) (*model.ChatSession, []model.Message, error) {
	chat, err := s.chatRepo.FindByIDForUser(chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.messageRepo.ListByChat(chatID)
	if err != nil {
		return nil, nil, err
	}
	return chat, messages, nil
}

func (s *chatService) RenameChat(chatID, userID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > MaxChatTitleLength {
		return ErrInvalidTitle
	}
	if _, err := s.chatRepo.FindByIDForUser(chatID, userID); err != nil {
		return err
	}
	return s.chatRepo.UpdateTitle(chatID, title)
}

// DeleteChat removes the chat and everything hanging off it: stored objects,
// index vectors, then the database rows in one transaction.
func (s *chatService) DeleteChat(ctx context.Context, chatID, userID string) error {
	if _, err := s.chatRepo.FindByIDForUser(chatID, userID); err != nil {
		return err
	}

	docs, err := s.docRepo.FindByChatID(chatID)
	if err != nil {
		return fmt.Errorf("failed to list chat documents: %w", err)
	}
	for _, doc := range docs {
		if doc.StorageKey == "" {
			continue
		}
		if err := s.storageClient.Remove(ctx, doc.StorageKey); err != nil {
			// Orphaned objects are acceptable; the database stays consistent.
			log.Warnf("[ChatService] failed to remove stored object %s: %v", doc.StorageKey, err)
		}
	}

	chunkIDs, err := s.chunkRepo.FindIDsByChatID(chatID)
	if err != nil {
		return fmt.Errorf("failed to collect chunk ids: %w", err)
	}
	if len(chunkIDs) > 0 {
		if err := s.vectorIndex.DeleteByIDs(ctx, chunkIDs); err != nil {
			log.Warnf("[ChatService] failed to delete %d vectors for chat %s: %v", len(chunkIDs), chatID, err)
		}
	}

	return s.chatRepo.DeleteCascade(chatID)
}

// PostUserMessage appends the user's turn to the transcript and bumps the
// chat's activity timestamp.
func (s *chatService) PostUserMessage(chatID, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    model.RoleUser,
		Content: content,
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	if err := s.chatRepo.Touch(chatID); err != nil {
		log.Warnf("[ChatService] failed to touch chat %s: %v", chatID, err)
	}
	return msg, nil
}

func (s *chatService) StreamAnswer(ctx context.Context, chatID, userID, query string, emitter StreamEmitter) (*DegradedAnswer, error) {
	queryVector, degraded := s.embedQuery(ctx, query)
	if degraded {
		return s.answerUnavailable(chatID)
	}

	contextChunks := s.retrieveContext(ctx, queryVector, chatID, userID)

	history, err := s.messageRepo.FindRecent(chatID, HistoryFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	if len(history) > HistoryPromptLimit {
		history = history[len(history)-HistoryPromptLimit:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: s.buildSystemPrompt(contextChunks)})
	for _, h := range history {
		messages = append(messages, llm.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: query})

	// Relay fragments as they arrive while accumulating the full answer. The
	// assistant turn is persisted exactly once, after the stream concludes.
	acc := &accumulatingWriter{emitter: emitter}
	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, acc); err != nil {
		log.Errorf("[ChatService] completion stream failed for chat %s: %v", chatID, err)
		if emitErr := emitter.EmitError(err.Error()); emitErr != nil {
			log.Warnf("[ChatService] failed to emit error event: %v", emitErr)
		}
		acc.builder.Reset()
		acc.builder.WriteString(fmt.Sprintf("Sorry, I was unable to process your query. Error: %s\n\n%s", err.Error(), model.LegalDisclaimer))
	}

	assistant := &model.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    model.RoleAssistant,
		Content: acc.builder.String(),
	}
	if err := s.messageRepo.Create(assistant); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	if err := emitter.EmitDone(assistant.ID); err != nil {
		return nil, fmt.Errorf("failed to emit done event: %w", err)
	}
	return nil, nil
}

// embedQuery returns the query vector, or degraded=true when the embedding
// capability is missing or failing. Degradation is not an error.
func (s *chatService) embedQuery(ctx context.Context, query string) ([]float32, bool) {
	if s.embeddingClient == nil {
		return nil, true
	}
	vectors, err := s.embeddingClient.CreateEmbeddings(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		log.Warnf("[ChatService] query embedding unavailable: %v", err)
		return nil, true
	}
	return vectors[0], false
}

func (s *chatService) answerUnavailable(chatID string) (*DegradedAnswer, error) {
	content := "I am unable to process your query right now. The embedding service is not available in this environment. " + model.LegalDisclaimer
	msg := &model.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    model.RoleAssistant,
		Content: content,
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("failed to persist degraded answer: %w", err)
	}
	return &DegradedAnswer{MessageID: msg.ID, Content: content}, nil
}

// retrieveContext searches the index and resolves matches back to chunk text.
// Every failure here degrades to "no context"; the answer must still run.
func (s *chatService) retrieveContext(ctx context.Context, vector []float32, chatID, userID string) []model.RetrievedChunk {
	matches, err := s.vectorIndex.Search(ctx, vector, RetrievalTopK, chatID, userID)
	if err != nil {
		log.Warnf("[ChatService] vector search failed for chat %s: %v", chatID, err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	chunks, err := s.chunkRepo.FindByIDs(ids)
	if err != nil {
		log.Warnf("[ChatService] failed to resolve %d chunks: %v", len(ids), err)
		return nil
	}

	byID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	// Preserve relevance order from the index.
	retrieved := make([]model.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok {
			continue
		}
		retrieved = append(retrieved, model.RetrievedChunk{
			Content: c.Content,
			Section: c.Section,
			Page:    c.Page,
		})
	}
	return retrieved
}

func (s *chatService) buildSystemPrompt(chunks []model.RetrievedChunk) string {
	rules := s.llmCfg.Prompt.Rules
	if rules == "" {
		rules = fmt.Sprintf(defaultPromptRules, model.LegalDisclaimer)
	}

	contextText := s.llmCfg.Prompt.NoResultText
	if contextText == "" {
		contextText = defaultNoContextText
	}
	if len(chunks) > 0 {
		entries := make([]string, len(chunks))
		for i, c := range chunks {
			var label strings.Builder
			if c.Section != "" {
				// Bare numbers get a "Section" prefix; "Article 14" style
				// labels already name their kind.
				if c.Section[0] >= '0' && c.Section[0] <= '9' {
					label.WriteString("Section ")
				}
				label.WriteString(c.Section)
			}
			if c.Page > 0 {
				label.WriteString(fmt.Sprintf(" (Page %d)", c.Page))
			}
			entries[i] = fmt.Sprintf("[%d] %s: %s", i+1, strings.TrimSpace(label.String()), c.Content)
		}
		contextText = strings.Join(entries, "\n\n")
	}

	return fmt.Sprintf("%s\n\nRules:\n%s\n\nRetrieved Context:\n%s", systemPromptHeader, rules, contextText)
}

type accumulatingWriter struct {
	emitter StreamEmitter
	builder strings.Builder
}

func (w *accumulatingWriter) WriteToken(content string) error {
	w.builder.WriteString(content)
	return w.emitter.EmitToken(content)
}
