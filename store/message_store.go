package store

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wellmom/chat-service/models"
)

var (
	// ErrEmptyBody rejects a message with no visible content.
	ErrEmptyBody = errors.New("message body must not be empty")
	// ErrBodyTooLong rejects a body over models.MaxMessageLength characters.
	ErrBodyTooLong = errors.New("message body exceeds maximum length")
)

// MessageStore owns message persistence and read-state accounting.
type MessageStore struct {
	db            *gorm.DB
	conversations *ConversationStore
}

func NewMessageStore(db *gorm.DB, conversations *ConversationStore) *MessageStore {
	return &MessageStore{db: db, conversations: conversations}
}

// Append inserts a message and bumps the conversation's last_message_at in
// one transaction. Ordering within a conversation is insertion order.
func (s *MessageStore) Append(conversationID, senderUserID uuid.UUID, body string) (*models.Message, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		return nil, ErrBodyTooLong
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderUserID:   senderUserID,
		Body:           body,
		IsRead:         false,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_at", message.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation returns one page of messages oldest-first, the order a
// chat view renders them in.
func (s *MessageStore) ListByConversation(conversationID uuid.UUID, skip, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Offset(skip).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountByConversation returns the total message count, used for has_more.
func (s *MessageStore) CountByConversation(conversationID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

// LastMessage returns the newest message of a conversation, or nil when the
// conversation is still empty.
func (s *MessageStore) LastMessage(conversationID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// CountUnread counts the counterpart's messages the reader has not seen yet.
// A reader who is not a participant gets 0; authorization is the caller's
// concern.
func (s *MessageStore) CountUnread(conversationID, readerUserID uuid.UUID) (int64, error) {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return 0, nil
		}
		return 0, err
	}

	senderUserID, ok := CounterpartUserID(conv, readerUserID)
	if !ok {
		return 0, nil
	}

	var count int64
	err = s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_user_id = ? AND is_read = ?", conversationID, senderUserID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks counterpart messages as read and returns how many changed.
// A nil/empty messageIDs selects every unread counterpart message. Messages
// outside the conversation, authored by the reader, or already read never
// match, so repeat calls return 0.
func (s *MessageStore) MarkRead(conversationID, readerUserID uuid.UUID, messageIDs []uuid.UUID) (int64, error) {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return 0, nil
		}
		return 0, err
	}

	senderUserID, ok := CounterpartUserID(conv, readerUserID)
	if !ok {
		return 0, nil
	}

	query := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_user_id = ? AND is_read = ?", conversationID, senderUserID, false)
	if len(messageIDs) > 0 {
		query = query.Where("id IN ?", messageIDs)
	}

	now := time.Now()
	result := query.Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
