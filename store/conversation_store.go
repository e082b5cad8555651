package store

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wellmom/chat-service/models"
)

// ErrConversationNotFound is returned when a conversation id does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore owns all conversation-level queries. Conversations are
// created lazily on first send and never deleted here.
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// GetOrCreate returns the conversation for the (recipient, provider) pair,
// creating it on first use. A concurrent first-message race loses the insert
// to the unique pair constraint and falls back to reading the winner's row.
func (s *ConversationStore) GetOrCreate(recipientID, providerID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.getByPair(recipientID, providerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := models.Conversation{RecipientID: recipientID, ProviderID: providerID}
	if createErr := s.db.Create(&created).Error; createErr != nil {
		// Likely the unique-pair constraint: another request created the
		// conversation between our read and insert.
		if conv, err = s.getByPair(recipientID, providerID); err == nil {
			return conv, nil
		}
		return nil, createErr
	}
	return s.GetByID(created.ID)
}

func (s *ConversationStore) getByPair(recipientID, providerID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.
		Preload("Recipient").
		Preload("Provider").
		Where("recipient_id = ? AND provider_id = ?", recipientID, providerID).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByID loads a conversation with both participant profiles, which callers
// need to resolve user ids for authorization and fan-out.
func (s *ConversationStore) GetByID(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.
		Preload("Recipient").
		Preload("Provider").
		First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForRecipient returns the recipient's conversations, most recent
// activity first. Conversations without any message yet sort last.
func (s *ConversationStore) ListForRecipient(recipientID uuid.UUID, skip, limit int) ([]models.Conversation, error) {
	return s.list("recipient_id = ?", recipientID, skip, limit)
}

// ListForProvider is the provider-side counterpart of ListForRecipient.
func (s *ConversationStore) ListForProvider(providerID uuid.UUID, skip, limit int) ([]models.Conversation, error) {
	return s.list("provider_id = ?", providerID, skip, limit)
}

func (s *ConversationStore) list(where string, id uuid.UUID, skip, limit int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.
		Preload("Recipient").
		Preload("Provider").
		Where(where, id).
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// ParticipantUserIDs resolves both sides of a conversation to their user
// ids. The conversation must have its profiles preloaded.
func ParticipantUserIDs(conv *models.Conversation) (recipientUserID, providerUserID uuid.UUID) {
	return conv.Recipient.UserID, conv.Provider.UserID
}

// CounterpartUserID returns the user id of the participant that is not the
// given user. The second return is false when the user is not a participant.
func CounterpartUserID(conv *models.Conversation, userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case conv.Recipient.UserID:
		return conv.Provider.UserID, true
	case conv.Provider.UserID:
		return conv.Recipient.UserID, true
	default:
		return uuid.Nil, false
	}
}
