package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/config"
	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/llm"
	"gwi.com/chatbot-backend/internal/metrics"
	"gwi.com/chatbot-backend/internal/store"
)

const contextPreamble = "Relevant excerpts from earlier conversations. Use them if they help answer the next question:"

type RAGService struct {
	dbStore  *store.Store
	embedder Embedder
	limit    int
	scope    string
	log      zerolog.Logger
}

// NewRAGService creates a retriever returning up to limit chunks. scope is
// config.ScopeUser to search only the caller's conversations or
// config.ScopeGlobal to search every stored chunk.
func NewRAGService(db *store.Store, embedder Embedder, limit int, scope string, logger zerolog.Logger) *RAGService {
	return &RAGService{
		dbStore:  db,
		embedder: embedder,
		limit:    limit,
		scope:    scope,
		log:      logger,
	}
}

// Retrieve returns the stored chunks nearest to query, closest first.
func (s *RAGService) Retrieve(ctx context.Context, userID uuid.UUID, query string) ([]store.ScoredChunk, error) {
	return s.retrieve(ctx, userID, query, nil)
}

// retrieve searches with queryVector when given and embeds query otherwise.
func (s *RAGService) retrieve(ctx context.Context, userID uuid.UUID, query string, queryVector []float32) ([]store.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" || s.limit <= 0 {
		return nil, nil
	}

	if queryVector == nil {
		vectors, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, errs.Newf(errs.ErrUpstream, "expected one query embedding, got %d", len(vectors))
		}
		queryVector = vectors[0]
	}

	var owner *uuid.UUID
	if s.scope != config.ScopeGlobal {
		owner = &userID
	}
	chunks, err := s.dbStore.SearchSimilar(ctx, queryVector, s.limit, owner)
	if err != nil {
		return nil, err
	}

	metrics.ContextChunksRetrieved.Observe(float64(len(chunks)))
	s.log.Debug().Int("chunks", len(chunks)).Str("scope", s.scope).Msg("retrieved context")
	return chunks, nil
}

// RetrieveContext returns the retrieved chunks as one system turn, or nil
// when nothing relevant is stored. A non-nil queryVector must be the
// embedding of query and saves embedding it again.
func (s *RAGService) RetrieveContext(ctx context.Context, userID uuid.UUID, query string, queryVector []float32) (*llm.Turn, error) {
	chunks, err := s.retrieve(ctx, userID, query, queryVector)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return &llm.Turn{Role: llm.RoleSystem, Content: FormatContext(chunks)}, nil
}

// FormatContext renders one role-annotated entry per source message with the
// message's full content, in the order its first chunk was retrieved. Chunks
// of an already written message and repeated contents are skipped.
func FormatContext(chunks []store.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(contextPreamble)

	seenMessages := make(map[uuid.UUID]bool, len(chunks))
	seenTexts := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		if chunk.MessageID != uuid.Nil {
			if seenMessages[chunk.MessageID] {
				continue
			}
			seenMessages[chunk.MessageID] = true
		}

		var text string
		if chunk.Content != nil {
			text = strings.TrimSpace(*chunk.Content)
		}
		if text == "" {
			text = strings.TrimSpace(chunk.TextChunk)
		}
		if text == "" || seenTexts[text] {
			continue
		}
		seenTexts[text] = true
		fmt.Fprintf(&b, "\n\n[%s] %s", toLLMRole(chunk.Role), text)
	}
	return b.String()
}

func toLLMRole(role store.MessageRole) llm.Role {
	switch role {
	case store.RoleSystem:
		return llm.RoleSystem
	case store.RoleAI:
		return llm.RoleAssistant
	default:
		return llm.RoleUser
	}
}
