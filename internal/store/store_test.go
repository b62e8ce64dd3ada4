package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/chatbot-backend/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *Store, sub string) *User {
	t.Helper()
	user, err := s.GetOrCreateUser(context.Background(), User{CognitoSub: sub})
	require.NoError(t, err)
	return user
}

// unitVector returns a 1024-dim vector with a single 1 at position i.
func unitVector(i int) []float32 {
	v := make([]float32, EmbeddingDimensions)
	v[i%EmbeddingDimensions] = 1
	return v
}

func strPtr(s string) *string { return &s }

// embeddingRows returns a message's embedding rows ordered by chunk index.
func embeddingRows(t *testing.T, s *Store, messageID uuid.UUID) []MessageEmbedding {
	t.Helper()
	var rows []MessageEmbedding
	require.NoError(t, s.db.Where("message_id = ?", messageID).Order("chunk_index ASC").Find(&rows).Error)
	return rows
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file:chatbot.db?_foreign_keys=on", sqliteDSN("chatbot.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "file:x?_fk=1", sqliteDSN("file:x?_fk=1"))
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, IsPostgresURL("postgres://u:p@localhost:5432/db"))
	assert.True(t, IsPostgresURL("postgresql://localhost/db"))
	assert.True(t, IsPostgresURL("host=localhost user=u dbname=db"))
	assert.False(t, IsPostgresURL("chatbot.db"))
}

func TestGetOrCreateUser_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, User{CognitoSub: "sub-1", Email: strPtr("a@example.com")})
	require.NoError(t, err)
	second, err := s.GetOrCreateUser(ctx, User{CognitoSub: "sub-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Email)
	assert.Equal(t, "a@example.com", *second.Email)

	missing, err := s.GetUserByCognitoSub(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetOrCreateUser_EmailOwnedByAnotherSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old, err := s.GetOrCreateUser(ctx, User{CognitoSub: "old-sub", Email: strPtr("a@example.com")})
	require.NoError(t, err)

	first, err := s.GetOrCreateUser(ctx, User{CognitoSub: "new-sub", Email: strPtr("a@example.com")})
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, first.ID)
	assert.Nil(t, first.Email)

	second, err := s.GetOrCreateUser(ctx, User{CognitoSub: "new-sub", Email: strPtr("a@example.com")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	kept, err := s.GetUserByCognitoSub(ctx, "old-sub")
	require.NoError(t, err)
	require.NotNil(t, kept.Email)
	assert.Equal(t, "a@example.com", *kept.Email)
}

func TestCreateUser_DuplicateSubIsStorageError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{CognitoSub: "dup"}))
	err := s.CreateUser(ctx, &User{CognitoSub: "dup"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStorage))
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")

	clock := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s.db.Config.NowFunc = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	conv, err := s.CreateConversation(ctx, user.ID, "Trip planning")
	require.NoError(t, err)
	assert.Equal(t, ConversationActive, conv.Status)
	assert.False(t, conv.CreatedAt.IsZero())

	archived := ConversationArchived
	updated, err := s.UpdateConversation(ctx, user.ID, conv.ID, ConversationUpdate{Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, ConversationArchived, updated.Status)
	assert.Equal(t, "Trip planning", updated.Title)
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt), "updated_at %v not after %v", updated.UpdatedAt, conv.UpdatedAt)
	assert.True(t, updated.CreatedAt.Equal(conv.CreatedAt))

	title := "Japan trip"
	updated, err = s.UpdateConversation(ctx, user.ID, conv.ID, ConversationUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Japan trip", updated.Title)

	list, err := s.ListConversations(ctx, user.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteConversation(ctx, user.ID, conv.ID))
	_, err = s.GetConversation(ctx, user.ID, conv.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestConversationOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner")
	other := newTestUser(t, s, "other")

	conv, err := s.CreateConversation(ctx, owner.ID, "private")
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, other.ID, conv.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	title := "hijacked"
	_, err = s.UpdateConversation(ctx, other.ID, conv.ID, ConversationUpdate{Title: &title})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	err = s.DeleteConversation(ctx, other.ID, conv.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	list, err := s.ListConversations(ctx, other.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	still, err := s.GetConversation(ctx, owner.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", still.Title)
}

func TestListConversations_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")

	for i := 0; i < 5; i++ {
		_, err := s.CreateConversation(ctx, user.ID, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
	}

	page, err := s.ListConversations(ctx, user.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = s.ListConversations(ctx, user.ID, 4, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSaveMessages_SequenceAndChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	userMsg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: strPtr("hello there"), TokenCount: 10}
	aiMsg := &Message{ConversationID: conv.ID, Role: RoleAI, Content: strPtr("hi"), TokenCount: 15}
	err = s.SaveMessages(ctx,
		MessageWithChunks{Message: userMsg, Chunks: []Chunk{{Text: "hello", Embedding: unitVector(0)}, {Text: " there", Embedding: unitVector(1)}}},
		MessageWithChunks{Message: aiMsg, Chunks: []Chunk{{Text: "hi", Embedding: unitVector(2)}}},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, userMsg.MessageCount)
	assert.Equal(t, 2, aiMsg.MessageCount)

	rows := embeddingRows(t, s, userMsg.ID)
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, i, row.ChunkIndex)
		assert.Len(t, row.Embedding.Slice(), EmbeddingDimensions)
	}
	assert.Equal(t, "hello", rows[0].TextChunk)

	recent, err := s.RecentMessages(ctx, conv.ID, 20)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, RoleUser, recent[0].Role)
	assert.Equal(t, RoleAI, recent[1].Role)
	assert.Equal(t, 15, recent[1].TokenCount)
}

func TestSaveMessages_RollsBackOnBadEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	err = s.SaveMessages(ctx,
		MessageWithChunks{Message: &Message{ConversationID: conv.ID, Role: RoleUser, Content: strPtr("ok")}, Chunks: []Chunk{{Text: "ok", Embedding: unitVector(0)}}},
		MessageWithChunks{Message: &Message{ConversationID: conv.ID, Role: RoleAI, Content: strPtr("bad")}, Chunks: []Chunk{{Text: "bad", Embedding: []float32{1, 2}}}},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	msgs, err := s.ListMessages(ctx, conv.ID, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSaveMessages_RejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	err = s.SaveMessages(ctx, MessageWithChunks{Message: &Message{ConversationID: conv.ID, Role: "robot", Content: strPtr("beep")}})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestMessageSequenceIsUniquePerConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)
	other, err := s.CreateConversation(ctx, user.ID, "d")
	require.NoError(t, err)

	require.NoError(t, s.db.Create(&Message{ConversationID: conv.ID, MessageCount: 1, Role: RoleUser}).Error)
	require.NoError(t, s.db.Create(&Message{ConversationID: other.ID, MessageCount: 1, Role: RoleUser}).Error)

	err = s.db.Create(&Message{ConversationID: conv.ID, MessageCount: 1, Role: RoleAI}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	next := &Message{ConversationID: conv.ID, Role: RoleAI}
	require.NoError(t, s.SaveMessages(ctx, MessageWithChunks{Message: next}))
	assert.Equal(t, 2, next.MessageCount)
}

func TestRecentMessages_KeepsLatestWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		msg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: strPtr(fmt.Sprintf("m%d", i)), TokenCount: i}
		require.NoError(t, s.SaveMessages(ctx, MessageWithChunks{Message: msg}))
	}

	recent, err := s.RecentMessages(ctx, conv.ID, 20)
	require.NoError(t, err)
	require.Len(t, recent, 20)
	assert.Equal(t, "m6", recent[0].Text())
	assert.Equal(t, "m25", recent[19].Text())
	assert.Equal(t, 25, recent[19].TokenCount)
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	msg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: strPtr("x")}
	require.NoError(t, s.SaveMessages(ctx, MessageWithChunks{Message: msg, Chunks: []Chunk{{Text: "x", Embedding: unitVector(3)}}}))

	err = s.DeleteMessage(ctx, uuid.New(), msg.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	require.NoError(t, s.DeleteMessage(ctx, conv.ID, msg.ID))
	assert.Empty(t, embeddingRows(t, s, msg.ID))

	err = s.DeleteMessage(ctx, conv.ID, msg.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDeleteConversation_RemovesMessagesAndEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := newTestUser(t, s, "owner")
	conv, err := s.CreateConversation(ctx, user.ID, "c")
	require.NoError(t, err)

	msg := &Message{ConversationID: conv.ID, Role: RoleUser, Content: strPtr("x")}
	require.NoError(t, s.SaveMessages(ctx, MessageWithChunks{Message: msg, Chunks: []Chunk{{Text: "x", Embedding: unitVector(4)}}}))

	require.Len(t, embeddingRows(t, s, msg.ID), 1)

	require.NoError(t, s.DeleteConversation(ctx, user.ID, conv.ID))

	msgs, err := s.ListMessages(ctx, conv.ID, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, embeddingRows(t, s, msg.ID))
}

func TestSearchSimilar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := newTestUser(t, s, "owner")
	other := newTestUser(t, s, "other")

	mine, err := s.CreateConversation(ctx, owner.ID, "mine")
	require.NoError(t, err)
	theirs, err := s.CreateConversation(ctx, other.ID, "theirs")
	require.NoError(t, err)

	near := make([]float32, EmbeddingDimensions)
	near[0], near[1] = 0.9, 0.1
	require.NoError(t, s.SaveMessages(ctx,
		MessageWithChunks{Message: &Message{ConversationID: mine.ID, Role: RoleUser, Content: strPtr("exact")}, Chunks: []Chunk{{Text: "exact", Embedding: unitVector(0)}}},
		MessageWithChunks{Message: &Message{ConversationID: mine.ID, Role: RoleAI, Content: strPtr("near")}, Chunks: []Chunk{{Text: "near", Embedding: near}}},
		MessageWithChunks{Message: &Message{ConversationID: mine.ID, Role: RoleUser, Content: strPtr("far")}, Chunks: []Chunk{{Text: "far", Embedding: unitVector(7)}}},
	))
	require.NoError(t, s.SaveMessages(ctx,
		MessageWithChunks{Message: &Message{ConversationID: theirs.ID, Role: RoleUser, Content: strPtr("foreign")}, Chunks: []Chunk{{Text: "foreign", Embedding: unitVector(0)}}},
	))

	results, err := s.SearchSimilar(ctx, unitVector(0), 2, &owner.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].TextChunk)
	assert.Equal(t, "near", results[1].TextChunk)
	assert.Equal(t, RoleAI, results[1].Role)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)

	global, err := s.SearchSimilar(ctx, unitVector(0), 10, nil)
	require.NoError(t, err)
	assert.Len(t, global, 4)

	again, err := s.SearchSimilar(ctx, unitVector(0), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, global, again)

	none, err := s.SearchSimilar(ctx, unitVector(0), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchSimilar_EmptyCorpus(t *testing.T) {
	s := newTestStore(t)
	results, err := s.SearchSimilar(context.Background(), unitVector(0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
