package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recipient is the pregnant-person profile side of a conversation. The
// profile itself is managed by the care-center service; the chat service
// reads it for the user mapping and the provider assignment.
type Recipient struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;unique" json:"user_id"`
	ProviderID *uuid.UUID `gorm:"type:uuid;index" json:"provider_id"`
	FullName   string     `gorm:"size:255;not null" json:"full_name"`
	IsActive   bool       `gorm:"default:true;index" json:"is_active"`

	User     User      `gorm:"foreignKey:UserID" json:"-"`
	Provider *Provider `gorm:"foreignKey:ProviderID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Recipient) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
