package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingDimensions is the width of the message_embeddings vector column.
const EmbeddingDimensions = 1024

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

type MessageRole string

const (
	RoleSystem MessageRole = "system"
	RoleAI     MessageRole = "ai"
	RoleUser   MessageRole = "user"
)

// Valid reports whether r is one of the stored roles.
func (r MessageRole) Valid() bool {
	return r == RoleSystem || r == RoleAI || r == RoleUser
}

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CognitoSub string    `gorm:"uniqueIndex;not null" json:"cognito_sub"`
	Email      *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`

	Conversations []Conversation `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

type Conversation struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string             `gorm:"not null" json:"title"`
	Status    ConversationStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time          `gorm:"not null" json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

type Message struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1;uniqueIndex:idx_messages_conversation_seq,priority:1" json:"conversation_id"`
	MessageCount   int         `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2" json:"message_count"` // per-conversation sequence number
	Role           MessageRole `gorm:"type:varchar(16);not null" json:"role"`
	Content        *string     `gorm:"type:text" json:"content"`
	TokenCount     int         `gorm:"not null" json:"token_count"`
	Provider       *string     `json:"provider"`
	Model          *string     `json:"model"`
	CreatedAt      time.Time   `gorm:"not null;index:idx_messages_conversation_created,priority:2" json:"created_at"`

	Embeddings []MessageEmbedding `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

// Text returns the message content, or "" when it is null.
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

type MessageEmbedding struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MessageID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	ChunkIndex int             `gorm:"not null"`
	TextChunk  string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector(1024);not null"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (e *MessageEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
