package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation links one care recipient with one care provider. The pair is
// unique: a second send between the same two profiles reuses the row.
type Conversation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_conversation_pair" json:"recipient_id"`
	ProviderID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_conversation_pair" json:"provider_id"`

	// LastMessageAt drives the conversation-list ordering. Nil until the
	// first message lands.
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`

	Recipient Recipient `gorm:"foreignKey:RecipientID" json:"-"`
	Provider  Provider  `gorm:"foreignKey:ProviderID" json:"-"`
	Messages  []Message `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
