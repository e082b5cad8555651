package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleRecipient = "recipient"
	RoleProvider  = "provider"
)

// User is the identity record owned by the platform's auth service. The chat
// service only reads it to resolve names, roles and credentials.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName     string    `gorm:"size:255;not null" json:"full_name"`
	Phone        string    `gorm:"size:20;not null;unique" json:"phone"`
	Email        *string   `gorm:"size:255" json:"email,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:50;not null;index" json:"role"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
