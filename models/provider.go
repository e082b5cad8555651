package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provider is the nurse/health-worker profile side of a conversation.
type Provider struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;unique" json:"user_id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	JobTitle string    `gorm:"size:100" json:"job_title"`
	IsActive bool      `gorm:"default:true;index" json:"is_active"`

	User User `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
