package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gwi.com/chatbot-backend/internal/errs"
)

// ConversationUpdate is a partial update; nil fields are left unchanged.
type ConversationUpdate struct {
	Title  *string
	Status *ConversationStatus
}

func (s *Store) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	conv := &Conversation{
		UserID: userID,
		Title:  title,
		Status: ConversationActive,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, storageErr(err, "failed to insert conversation")
	}
	return conv, nil
}

// GetConversation returns the conversation only if userID owns it. Absent and
// foreign conversations are both reported as ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.ErrNotFound, "conversation not found")
		}
		return nil, storageErr(err, "failed to query conversation")
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID, skip, limit int) ([]Conversation, error) {
	var convs []Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, storageErr(err, "failed to query conversations")
	}
	return convs, nil
}

func (s *Store) UpdateConversation(ctx context.Context, userID, conversationID uuid.UUID, update ConversationUpdate) (*Conversation, error) {
	var conv *Conversation
	err := s.Transaction(ctx, func(tx *Store) error {
		var err error
		conv, err = tx.GetConversation(ctx, userID, conversationID)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if update.Title != nil {
			fields["title"] = *update.Title
		}
		if update.Status != nil {
			fields["status"] = *update.Status
		}
		if len(fields) == 0 {
			return nil
		}

		// Updates through Model refreshes updated_at.
		if err := tx.db.WithContext(ctx).Model(conv).Updates(fields).Error; err != nil {
			return storageErr(err, "failed to update conversation")
		}
		conv, err = tx.GetConversation(ctx, userID, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes the conversation with its messages and their
// embeddings in one transaction. FK cascades cover the same rows; deleting
// explicitly keeps the outcome independent of the dialect's FK enforcement.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.GetConversation(ctx, userID, conversationID); err != nil {
			return err
		}

		db := tx.db.WithContext(ctx)
		messageIDs := db.Model(&Message{}).Select("id").Where("conversation_id = ?", conversationID)
		if err := db.Where("message_id IN (?)", messageIDs).Delete(&MessageEmbedding{}).Error; err != nil {
			return storageErr(err, "failed to delete message embeddings")
		}
		if err := db.Where("conversation_id = ?", conversationID).Delete(&Message{}).Error; err != nil {
			return storageErr(err, "failed to delete messages")
		}
		if err := db.Where("id = ?", conversationID).Delete(&Conversation{}).Error; err != nil {
			return storageErr(err, "failed to delete conversation")
		}
		return nil
	})
}
