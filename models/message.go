package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxMessageLength bounds a chat message body in characters.
const MaxMessageLength = 5000

// Message is an append-only chat message. Only IsRead/ReadAt ever change
// after insert.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_message_conversation_created" json:"conversation_id"`
	SenderUserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_user_id"`
	Body           string    `gorm:"type:text;not null" json:"message_text"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	Sender       User         `gorm:"foreignKey:SenderUserID" json:"-"`
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`

	CreatedAt time.Time `gorm:"index:idx_message_conversation_created" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
