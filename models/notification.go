package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTypeNewMessage = "new_message"

	NotificationPriorityNormal = "normal"

	NotificationSentViaInApp = "in_app"
)

// Notification is the shared in-app notification record. The chat service
// creates one per message delivered to an offline participant; other
// platform services create their own types.
type Notification struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title   string    `gorm:"size:255;not null" json:"title"`
	Message string    `gorm:"type:text;not null" json:"message"`

	NotificationType string `gorm:"size:50;not null;index" json:"notification_type"`
	Priority         string `gorm:"size:20;default:'normal';index" json:"priority"`
	SentVia          string `gorm:"size:50;not null" json:"sent_via"`

	RelatedEntityType *string    `gorm:"size:50" json:"related_entity_type"`
	RelatedEntityID   *uuid.UUID `gorm:"type:uuid" json:"related_entity_id"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	ScheduledFor *time.Time `gorm:"index" json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
