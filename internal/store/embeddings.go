package store

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"gwi.com/chatbot-backend/internal/utils"
)

// ScoredChunk is an embedded chunk ranked against a query, annotated with
// the message it came from.
type ScoredChunk struct {
	MessageID  uuid.UUID
	ChunkIndex int
	TextChunk  string
	Role       MessageRole
	Content    *string
	Distance   float64
}

// SearchSimilar returns the k chunks with the smallest cosine distance to
// query. With ownerID set only chunks of that user's conversations are
// candidates. Ties keep storage order.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, k int, ownerID *uuid.UUID) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.isPostgres() {
		return s.searchPostgres(ctx, query, k, ownerID)
	}
	return s.searchInMemory(ctx, query, k, ownerID)
}

func (s *Store) candidates(ctx context.Context, ownerID *uuid.UUID) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("message_embeddings AS e").
		Joins("JOIN messages m ON m.id = e.message_id")
	if ownerID != nil {
		q = q.Joins("JOIN conversations c ON c.id = m.conversation_id").
			Where("c.user_id = ?", *ownerID)
	}
	return q
}

func (s *Store) searchPostgres(ctx context.Context, query []float32, k int, ownerID *uuid.UUID) ([]ScoredChunk, error) {
	var results []ScoredChunk
	err := s.candidates(ctx, ownerID).
		Select("e.message_id, e.chunk_index, e.text_chunk, m.role, m.content, e.embedding <=> ? AS distance", pgvector.NewVector(query)).
		Order("distance ASC, m.created_at ASC, m.message_count ASC, e.chunk_index ASC").
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, storageErr(err, "failed to search similar chunks")
	}
	return results, nil
}

type candidateRow struct {
	MessageID  uuid.UUID
	ChunkIndex int
	TextChunk  string
	Role       MessageRole
	Content    *string
	Embedding  pgvector.Vector
}

// searchInMemory ranks every candidate in Go for dialects without a vector
// operator.
func (s *Store) searchInMemory(ctx context.Context, query []float32, k int, ownerID *uuid.UUID) ([]ScoredChunk, error) {
	var rows []candidateRow
	err := s.candidates(ctx, ownerID).
		Select("e.message_id, e.chunk_index, e.text_chunk, m.role, m.content, e.embedding").
		Order("m.created_at ASC, m.message_count ASC, e.chunk_index ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr(err, "failed to load chunk embeddings")
	}

	results := make([]ScoredChunk, 0, len(rows))
	for _, row := range rows {
		distance, err := utils.CosineDistance(query, row.Embedding.Slice())
		if err != nil {
			s.log.Warn().Err(err).Str("message_id", row.MessageID.String()).Int("chunk_index", row.ChunkIndex).Msg("skipping chunk with incompatible embedding")
			continue
		}
		results = append(results, ScoredChunk{
			MessageID:  row.MessageID,
			ChunkIndex: row.ChunkIndex,
			TextChunk:  row.TextChunk,
			Role:       row.Role,
			Content:    row.Content,
			Distance:   float64(distance),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
