package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderType identifies the upstream vendor family of a provider
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeCustom    ProviderType = "custom"
)

// Provider groups model configurations sharing an upstream vendor and base URL
type Provider struct {
	ID        uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string       `gorm:"size:255;not null;uniqueIndex"                  json:"name"`
	Type      ProviderType `gorm:"size:20;not null;default:'custom'"              json:"type"`
	BaseURL   string       `gorm:"size:500"                                       json:"baseUrl"`
	APIKey    string       `gorm:"size:500"                                       json:"-"`
	IsCustom  bool         `gorm:"not null;default:false"                         json:"isCustom"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// Associations
	ModelConfigs []ModelConfig `gorm:"foreignKey:ProviderID" json:"modelConfigs,omitempty"`
}

// TableName specifies the table name for Provider model
func (Provider) TableName() string {
	return "providers"
}

// BeforeCreate hook to ensure ID is set
func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProviderSummary is the provider shape embedded in model listings
type ProviderSummary struct {
	ID   uuid.UUID    `json:"id"`
	Name string       `json:"name"`
	Type ProviderType `json:"type"`
}

// ToSummary converts a Provider to its listing shape
func (p *Provider) ToSummary() ProviderSummary {
	return ProviderSummary{
		ID:   p.ID,
		Name: p.Name,
		Type: p.Type,
	}
}
