package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole defines the possible roles for a message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Message represents a single immutable turn in a conversation.
// Seq breaks creation-timestamp ties so history reads back in a
// deterministic order.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index"                       json:"conversationId"`
	Role           MessageRole    `gorm:"size:20;not null;check:role IN ('user','assistant','system')" json:"role"`
	Content        string         `gorm:"type:text"                                      json:"content"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;default:'{}'"                        json:"metadata,omitempty"`
	Seq            int64          `gorm:"autoIncrement;uniqueIndex"                      json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`

	// Associations
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}

// MessageOrder is the canonical ordering clause for conversation history
const MessageOrder = "created_at ASC, seq ASC"

// TableName specifies the table name for Message model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate hook to ensure ID is set
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
