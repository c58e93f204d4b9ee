package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultConversationTitle is the placeholder shown until the title
// generator or an explicit rename overwrites it.
const DefaultConversationTitle = "New Chat"

// Conversation represents a titled, user-owned thread of messages
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"                       json:"userId"`
	Title     string    `gorm:"size:500;not null;default:'New Chat'"           json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	User     User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"         json:"user,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for Conversation model
func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate hook to ensure ID is set
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Title == "" {
		c.Title = DefaultConversationTitle
	}
	return nil
}
