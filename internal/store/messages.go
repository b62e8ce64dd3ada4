package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"gwi.com/chatbot-backend/internal/errs"
)

// Chunk is one embedded window of a message's content.
type Chunk struct {
	Text      string
	Embedding []float32
}

// MessageWithChunks is a message ready to be written together with its
// embedding rows. Chunks are written with chunk_index = slice position.
type MessageWithChunks struct {
	Message *Message
	Chunks  []Chunk
}

// SaveMessages writes every message and its embedding rows in one
// transaction, in order. Each message gets the next sequence number of its
// conversation; a concurrent writer that claimed the same number fails the
// unique (conversation_id, message_count) index and the whole batch rolls
// back.
func (s *Store) SaveMessages(ctx context.Context, batch ...MessageWithChunks) error {
	return s.Transaction(ctx, func(tx *Store) error {
		for _, item := range batch {
			if err := tx.insertMessage(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertMessage(ctx context.Context, item MessageWithChunks) error {
	msg := item.Message
	if !msg.Role.Valid() {
		return errs.Newf(errs.ErrInvalidArgument, "invalid message role %q", msg.Role)
	}
	db := s.db.WithContext(ctx)

	var maxCount int
	err := db.Model(&Message{}).
		Where("conversation_id = ?", msg.ConversationID).
		Select("COALESCE(MAX(message_count), 0)").
		Scan(&maxCount).Error
	if err != nil {
		return storageErr(err, "failed to read message sequence")
	}
	msg.MessageCount = maxCount + 1

	if err := db.Create(msg).Error; err != nil {
		if isUniqueViolation(err) {
			return storageErr(err, "message sequence %d of conversation %s already taken", msg.MessageCount, msg.ConversationID)
		}
		return storageErr(err, "failed to insert message")
	}

	if len(item.Chunks) == 0 {
		return nil
	}
	rows := make([]MessageEmbedding, len(item.Chunks))
	for i, chunk := range item.Chunks {
		if len(chunk.Embedding) != EmbeddingDimensions {
			return errs.Newf(errs.ErrInvalidArgument, "embedding for chunk %d has %d dimensions, want %d", i, len(chunk.Embedding), EmbeddingDimensions)
		}
		rows[i] = MessageEmbedding{
			MessageID:  msg.ID,
			ChunkIndex: i,
			TextChunk:  chunk.Text,
			Embedding:  pgvector.NewVector(chunk.Embedding),
		}
	}
	if err := db.Create(&rows).Error; err != nil {
		return storageErr(err, "failed to insert message embeddings")
	}
	return nil
}

// ListMessages returns a page of a conversation's messages in chronological
// order.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, skip, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, message_count ASC").
		Offset(skip).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, storageErr(err, "failed to query messages")
	}
	return messages, nil
}

// RecentMessages returns the latest n messages of a conversation, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, message_count DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, storageErr(err, "failed to query recent messages")
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// DeleteMessage removes one message of a conversation and its embeddings.
func (s *Store) DeleteMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		db := tx.db.WithContext(ctx)

		var count int64
		err := db.Model(&Message{}).
			Where("id = ? AND conversation_id = ?", messageID, conversationID).
			Count(&count).Error
		if err != nil {
			return storageErr(err, "failed to query message")
		}
		if count == 0 {
			return errs.Newf(errs.ErrNotFound, "no message with given id in given conversation")
		}

		if err := db.Where("message_id = ?", messageID).Delete(&MessageEmbedding{}).Error; err != nil {
			return storageErr(err, "failed to delete message embeddings")
		}
		if err := db.Where("id = ?", messageID).Delete(&Message{}).Error; err != nil {
			return storageErr(err, "failed to delete message")
		}
		return nil
	})
}
