package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModelConfig is a named, credentialed pointer to one upstream model endpoint
type ModelConfig struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name       string     `gorm:"size:255;not null"                              json:"name"`
	BaseURL    string     `gorm:"size:500;not null"                              json:"baseUrl"`
	APIKey     string     `gorm:"size:500;not null"                              json:"-"`
	Model      string     `gorm:"size:255;not null"                              json:"model"`
	Enabled    bool       `gorm:"not null;default:false;index"                   json:"enabled"`
	ProviderID *uuid.UUID `gorm:"type:uuid;index"                                json:"providerId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	// Associations
	Provider *Provider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

// TableName specifies the table name for ModelConfig model
func (ModelConfig) TableName() string {
	return "model_configs"
}

// BeforeCreate hook to ensure ID is set
func (m *ModelConfig) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MaskedAPIKey returns the only form of the key that may ever leave the
// service: bullets plus the last four characters.
func (m *ModelConfig) MaskedAPIKey() string {
	const mask = "••••••••"
	if len(m.APIKey) <= 4 {
		return mask
	}
	return mask + m.APIKey[len(m.APIKey)-4:]
}

// MaskedModelConfig is the response shape for model configurations
type MaskedModelConfig struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	BaseURL   string           `json:"baseUrl"`
	APIKey    string           `json:"apiKey"`
	Model     string           `json:"model"`
	Enabled   bool             `json:"enabled"`
	Provider  *ProviderSummary `json:"provider,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ToMasked converts a ModelConfig to its response shape
func (m *ModelConfig) ToMasked() MaskedModelConfig {
	masked := MaskedModelConfig{
		ID:        m.ID,
		Name:      m.Name,
		BaseURL:   strings.TrimRight(m.BaseURL, "/"),
		APIKey:    m.MaskedAPIKey(),
		Model:     m.Model,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Provider != nil {
		summary := m.Provider.ToSummary()
		masked.Provider = &summary
	}
	return masked
}
