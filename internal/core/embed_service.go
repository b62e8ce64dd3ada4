package core

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/metrics"
	"gwi.com/chatbot-backend/internal/store"
)

// Embedder maps texts to unit-length vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Tokenizer is the embedding model's tokenizer.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// EmbedService splits message content into token windows, embeds them and
// writes the message together with its chunks.
type EmbedService struct {
	dbStore   *store.Store
	embedder  Embedder
	tokenizer Tokenizer
	maxTokens int
	log       zerolog.Logger
}

func NewEmbedService(db *store.Store, embedder Embedder, tokenizer Tokenizer, maxTokens int, logger zerolog.Logger) *EmbedService {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &EmbedService{
		dbStore:   db,
		embedder:  embedder,
		tokenizer: tokenizer,
		maxTokens: maxTokens,
		log:       logger,
	}
}

// ChunkText splits text into contiguous windows of at most maxTokens tokens.
// A window is shortened when its end would cut a multi-byte character, so
// every chunk is valid UTF-8 and the chunks concatenate back to text.
func (s *EmbedService) ChunkText(text string) []string {
	tokens := s.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(tokens); {
		end := min(start+s.maxTokens, len(tokens))
		chunk := s.tokenizer.Decode(tokens[start:end])
		for end < len(tokens) && end-start > 1 && !utf8.ValidString(chunk) {
			end--
			chunk = s.tokenizer.Decode(tokens[start:end])
		}
		chunks = append(chunks, chunk)
		start = end
	}
	return chunks
}

// Prepare chunks and embeds msg without writing anything. Empty content
// yields zero chunks; whitespace is content like any other text.
func (s *EmbedService) Prepare(ctx context.Context, msg *store.Message) (store.MessageWithChunks, error) {
	prepared := store.MessageWithChunks{Message: msg}
	texts := s.ChunkText(msg.Text())
	if len(texts) == 0 {
		return prepared, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return prepared, err
	}
	if len(vectors) != len(texts) {
		return prepared, errs.Newf(errs.ErrUpstream, "expected %d embeddings, got %d", len(texts), len(vectors))
	}

	prepared.Chunks = make([]store.Chunk, len(texts))
	for i, text := range texts {
		prepared.Chunks[i] = store.Chunk{Text: text, Embedding: vectors[i]}
	}
	metrics.EmbeddedChunksTotal.Add(float64(len(texts)))
	return prepared, nil
}

// StoreMessage embeds msg and writes it with its chunks in one transaction.
func (s *EmbedService) StoreMessage(ctx context.Context, msg *store.Message) error {
	prepared, err := s.Prepare(ctx, msg)
	if err != nil {
		return err
	}
	if err := s.dbStore.SaveMessages(ctx, prepared); err != nil {
		return err
	}

	s.log.Debug().
		Str("message_id", msg.ID.String()).
		Str("conversation_id", msg.ConversationID.String()).
		Int("chunks", len(prepared.Chunks)).
		Msg("message stored")
	return nil
}
