package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/llm"
	"gwi.com/chatbot-backend/internal/metrics"
	"gwi.com/chatbot-backend/internal/store"
)

type ChatService struct {
	dbStore      *store.Store
	embeds       *EmbedService
	ragService   *RAGService
	llm          llm.Provider
	historyLimit int
	log          zerolog.Logger
}

func NewChatService(db *store.Store, embeds *EmbedService, rag *RAGService, provider llm.Provider, historyLimit int, logger zerolog.Logger) *ChatService {
	return &ChatService{
		dbStore:      db,
		embeds:       embeds,
		ragService:   rag,
		llm:          provider,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// GetOrCreateUser resolves a verified identity to its user row, creating
// the row on first sight.
func (s *ChatService) GetOrCreateUser(ctx context.Context, candidate store.User) (*store.User, error) {
	return s.dbStore.GetOrCreateUser(ctx, candidate)
}

func (s *ChatService) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*store.Conversation, error) {
	return s.dbStore.CreateConversation(ctx, userID, title)
}

func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, skip, limit int) ([]store.Conversation, error) {
	return s.dbStore.ListConversations(ctx, userID, skip, limit)
}

func (s *ChatService) UpdateConversation(ctx context.Context, userID, conversationID uuid.UUID, update store.ConversationUpdate) (*store.Conversation, error) {
	return s.dbStore.UpdateConversation(ctx, userID, conversationID, update)
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.dbStore.DeleteConversation(ctx, userID, conversationID)
}

// CreateMessage stores a message, with its embeddings, in a conversation
// owned by userID.
func (s *ChatService) CreateMessage(ctx context.Context, userID uuid.UUID, msg *store.Message) error {
	if _, err := s.dbStore.GetConversation(ctx, userID, msg.ConversationID); err != nil {
		return err
	}
	return s.embeds.StoreMessage(ctx, msg)
}

func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, skip, limit int) ([]store.Message, error) {
	if _, err := s.dbStore.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.dbStore.ListMessages(ctx, conversationID, skip, limit)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, errs.Newf(errs.ErrNotFound, "no messages for given conversation id")
	}
	return messages, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, userID, conversationID, messageID uuid.UUID) error {
	if _, err := s.dbStore.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.dbStore.DeleteMessage(ctx, conversationID, messageID)
}

// ChatRequest is one user turn. Provider and Model only label the stored
// reply; the configured provider always answers.
type ChatRequest struct {
	Content  string
	Provider string
	Model    string
}

type ChatResult struct {
	Reply       string
	UserMessage *store.Message
	AIMessage   *store.Message
}

// Chat runs one retrieval-augmented turn: recent history and retrieved
// context go to the LLM, then the user turn and the reply are stored with
// their embeddings in a single transaction. Nothing is stored on failure.
func (s *ChatService) Chat(ctx context.Context, userID, conversationID uuid.UUID, req ChatRequest) (*ChatResult, error) {
	result, err := s.chat(ctx, userID, conversationID, req)
	metrics.ChatTurnsTotal.WithLabelValues(s.llm.Name(), outcome(err)).Inc()
	if err != nil {
		s.log.Error().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("chat turn failed")
		return nil, err
	}
	return result, nil
}

func (s *ChatService) chat(ctx context.Context, userID, conversationID uuid.UUID, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errs.Newf(errs.ErrInvalidArgument, "content must not be empty")
	}
	if _, err := s.dbStore.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	history, err := s.dbStore.RecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	tokenCount := 0
	if len(history) > 0 {
		tokenCount = history[len(history)-1].TokenCount
	}

	turns := make([]llm.Turn, 0, len(history)+2)
	for _, msg := range history {
		if msg.Text() == "" {
			continue
		}
		turns = append(turns, llm.Turn{Role: toLLMRole(msg.Role), Content: msg.Text()})
	}

	userContent := req.Content
	userMsg := &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        &userContent,
	}
	preparedUser, err := s.embeds.Prepare(ctx, userMsg)
	if err != nil {
		return nil, err
	}

	// A single-chunk input is its own query embedding.
	var queryVector []float32
	if len(preparedUser.Chunks) == 1 {
		queryVector = preparedUser.Chunks[0].Embedding
	}
	contextTurn, err := s.ragService.RetrieveContext(ctx, userID, req.Content, queryVector)
	if err != nil {
		return nil, err
	}
	if contextTurn != nil {
		turns = append(turns, *contextTurn)
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: req.Content})

	start := time.Now()
	completion, err := s.llm.Complete(ctx, llm.Request{Turns: turns})
	metrics.UpstreamLatency.WithLabelValues("completion").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	metrics.TokensTotal.WithLabelValues(s.llm.Name(), "prompt").Add(float64(completion.PromptTokens))
	metrics.TokensTotal.WithLabelValues(s.llm.Name(), "completion").Add(float64(completion.CompletionTokens))

	tokenCount += completion.PromptTokens
	userMsg.TokenCount = tokenCount

	tokenCount += completion.CompletionTokens
	providerLabel := req.Provider
	if providerLabel == "" {
		providerLabel = s.llm.Name()
	}
	modelLabel := req.Model
	if modelLabel == "" {
		modelLabel = completion.Model
	}
	reply := completion.Content
	aiMsg := &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleAI,
		Content:        &reply,
		TokenCount:     tokenCount,
		Provider:       &providerLabel,
		Model:          &modelLabel,
	}

	preparedAI, err := s.embeds.Prepare(ctx, aiMsg)
	if err != nil {
		return nil, err
	}
	if err := s.dbStore.SaveMessages(ctx, preparedUser, preparedAI); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("conversation_id", conversationID.String()).
		Int("history", len(history)).
		Bool("context", contextTurn != nil).
		Int("prompt_tokens", completion.PromptTokens).
		Int("completion_tokens", completion.CompletionTokens).
		Msg("chat turn stored")

	return &ChatResult{
		Reply:       reply,
		UserMessage: userMsg,
		AIMessage:   aiMsg,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errs.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, errs.ErrStorage):
		return "storage_error"
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidArgument):
		return "rejected"
	default:
		return "error"
	}
}
