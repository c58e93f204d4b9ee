package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole defines the possible roles for a user
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User represents a user in the system
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"     json:"id"`
	Username     *string        `gorm:"size:255;uniqueIndex"                               json:"username,omitempty"`
	Email        *string        `gorm:"size:255;uniqueIndex"                               json:"email,omitempty"`
	PasswordHash *string        `gorm:"size:255"                                           json:"-"` // Never expose password hash in JSON
	Role         UserRole       `gorm:"size:20;not null;default:'user';check:role IN ('user','admin')" json:"role"`
	Language     string         `gorm:"size:10;not null;default:'en'"                      json:"language"`
	CreatedAt    time.Time      `                                                          json:"createdAt"`
	UpdatedAt    time.Time      `                                                          json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                                              json:"deletedAt,omitempty"`

	// Associations
	Conversations []Conversation `gorm:"foreignKey:UserID" json:"conversations,omitempty"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to ensure ID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// PublicUser represents user data safe for public consumption
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Username  *string   `json:"username,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Role      UserRole  `json:"role"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToPublic converts User to PublicUser (removes sensitive data)
func (u *User) ToPublic() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Language:  u.Language,
		CreatedAt: u.CreatedAt,
	}
}
