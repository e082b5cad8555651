package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wellmom/chat-service/models"
	"github.com/wellmom/chat-service/store"
	"github.com/wellmom/chat-service/websocket"
)

// pushBodyLimit caps the characters of message text forwarded to the push
// relay.
const pushBodyLimit = 100

var (
	ErrAccessDenied            = errors.New("access denied")
	ErrRecipientProfileMissing = errors.New("recipient profile not found")
	ErrProviderProfileMissing  = errors.New("provider profile not found")
	ErrNoProviderAssigned      = errors.New("no provider assigned yet")
	ErrRecipientRequired       = errors.New("recipient_id is required")
	ErrRecipientNotFound       = errors.New("recipient not found")
	ErrRecipientNotAssigned    = errors.New("recipient is not assigned to this provider")
	ErrConversationOutdated    = errors.New("conversation does not match the current care assignment")
)

// PushDispatcher is the external push interface. The concrete client lives
// in the notifications package; tests substitute a fake.
type PushDispatcher interface {
	Dispatch(userID uuid.UUID, title, body string, data map[string]string) error
}

// MessageView is the enriched message shape shared by the REST responses and
// the websocket new_message frame.
type MessageView struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderUserID   uuid.UUID  `json:"sender_user_id"`
	SenderName     string     `json:"sender_name"`
	SenderRole     string     `json:"sender_role"`
	MessageText    string     `json:"message_text"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type NewMessageFrame struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

type ReadReceiptFrame struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderUserID   uuid.UUID `json:"reader_user_id"`
	ReadCount      int64     `json:"read_count"`
}

// ChatService coordinates a send: persist first, then best-effort live
// fan-out, then the offline notification fallback. Only persistence failures
// surface to the caller.
type ChatService struct {
	db            *gorm.DB
	registry      *websocket.Registry
	conversations *store.ConversationStore
	messages      *store.MessageStore
	push          PushDispatcher
}

func NewChatService(db *gorm.DB, registry *websocket.Registry, push PushDispatcher) *ChatService {
	conversations := store.NewConversationStore(db)
	return &ChatService{
		db:            db,
		registry:      registry,
		conversations: conversations,
		messages:      store.NewMessageStore(db, conversations),
		push:          push,
	}
}

func (s *ChatService) Conversations() *store.ConversationStore { return s.conversations }
func (s *ChatService) Messages() *store.MessageStore           { return s.messages }

// AuthorizeAccess is the single capability check for conversation access: a
// recipient-side user must own the recipient profile, a provider-side user
// the provider profile. The conversation must carry its preloaded profiles.
func (s *ChatService) AuthorizeAccess(user *models.User, conv *models.Conversation) error {
	switch user.Role {
	case models.RoleRecipient:
		if conv.Recipient.UserID == user.ID {
			return nil
		}
	case models.RoleProvider:
		if conv.Provider.UserID == user.ID {
			return nil
		}
	}
	return ErrAccessDenied
}

// Send persists a message from sender and triggers delivery.
//
// A recipient always writes to her assigned provider and recipientID is
// ignored; a provider must name a recipient assigned to him. The message is
// committed before any delivery attempt, and delivery failures never fail
// the send.
func (s *ChatService) Send(sender *models.User, recipientID *uuid.UUID, body string) (*MessageView, error) {
	conv, err := s.resolveConversation(sender, recipientID)
	if err != nil {
		return nil, err
	}
	return s.deliver(conv, sender, body)
}

// SendToConversation persists a message into a conversation the caller has
// already been authorized on, after checking that the conversation still
// matches the sender's current care assignment. A conversation left behind by
// a provider reassignment is rejected with ErrConversationOutdated instead of
// silently rerouting the message.
func (s *ChatService) SendToConversation(sender *models.User, conv *models.Conversation, body string) (*MessageView, error) {
	resolved, err := s.resolveConversation(sender, &conv.RecipientID)
	if err != nil {
		return nil, err
	}
	if resolved.ID != conv.ID {
		return nil, ErrConversationOutdated
	}
	return s.deliver(resolved, sender, body)
}

func (s *ChatService) deliver(conv *models.Conversation, sender *models.User, body string) (*MessageView, error) {
	message, err := s.messages.Append(conv.ID, sender.ID, body)
	if err != nil {
		return nil, err
	}

	view := newMessageView(message, sender)
	s.broadcastAsync(conv, NewMessageFrame{Type: "new_message", Message: *view})

	if counterpart, ok := store.CounterpartUserID(conv, sender.ID); ok {
		if s.registry.ConnectionCount(counterpart) == 0 {
			s.fallbackAsync(conv, sender, counterpart, body)
		}
	}

	return view, nil
}

func (s *ChatService) resolveConversation(sender *models.User, recipientID *uuid.UUID) (*models.Conversation, error) {
	switch sender.Role {
	case models.RoleRecipient:
		var recipient models.Recipient
		err := s.db.Where("user_id = ?", sender.ID).First(&recipient).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientProfileMissing
		}
		if err != nil {
			return nil, err
		}
		if recipient.ProviderID == nil {
			return nil, ErrNoProviderAssigned
		}
		return s.conversations.GetOrCreate(recipient.ID, *recipient.ProviderID)

	case models.RoleProvider:
		if recipientID == nil {
			return nil, ErrRecipientRequired
		}
		var provider models.Provider
		err := s.db.Where("user_id = ?", sender.ID).First(&provider).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderProfileMissing
		}
		if err != nil {
			return nil, err
		}
		var recipient models.Recipient
		err = s.db.First(&recipient, "id = ?", *recipientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		if err != nil {
			return nil, err
		}
		if recipient.ProviderID == nil || *recipient.ProviderID != provider.ID {
			return nil, ErrRecipientNotAssigned
		}
		return s.conversations.GetOrCreate(recipient.ID, provider.ID)
	}

	return nil, ErrAccessDenied
}

// MarkRead marks counterpart messages read for the reader and, when anything
// changed, broadcasts a read receipt under the same never-fail contract as
// message fan-out. A no-op selection returns 0 and succeeds.
func (s *ChatService) MarkRead(reader *models.User, conv *models.Conversation, messageIDs []uuid.UUID) (int64, error) {
	count, err := s.messages.MarkRead(conv.ID, reader.ID, messageIDs)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.broadcastAsync(conv, ReadReceiptFrame{
			Type:           "read_receipt",
			ConversationID: conv.ID,
			ReaderUserID:   reader.ID,
			ReadCount:      count,
		})
	}
	return count, nil
}

// MessageViews enriches a page of messages with sender name and role.
func (s *ChatService) MessageViews(messages []models.Message) ([]MessageView, error) {
	senderIDs := make([]uuid.UUID, 0, len(messages))
	seen := make(map[uuid.UUID]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.SenderUserID]; !ok {
			seen[m.SenderUserID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderUserID)
		}
	}

	senders := make(map[uuid.UUID]models.User, len(senderIDs))
	if len(senderIDs) > 0 {
		var users []models.User
		if err := s.db.Where("id IN ?", senderIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			senders[u.ID] = u
		}
	}

	views := make([]MessageView, 0, len(messages))
	for i := range messages {
		sender := senders[messages[i].SenderUserID]
		views = append(views, *newMessageView(&messages[i], &sender))
	}
	return views, nil
}

func newMessageView(m *models.Message, sender *models.User) *MessageView {
	return &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderUserID:   m.SenderUserID,
		SenderName:     sender.FullName,
		SenderRole:     sender.Role,
		MessageText:    m.Body,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}

// broadcastAsync fans a frame out to both participants without blocking the
// caller. The recover boundary keeps a delivery panic from reaching the
// request path.
func (s *ChatService) broadcastAsync(conv *models.Conversation, payload interface{}) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Recovered panic during chat broadcast for conversation %s: %v", conv.ID, r)
			}
		}()
		s.registry.BroadcastToConversation(conv, payload)
	}()
}

// fallbackAsync runs the offline fallback off the request path so the sender
// never waits on the push relay. Same recover boundary as broadcastAsync.
func (s *ChatService) fallbackAsync(conv *models.Conversation, sender *models.User, recipientUserID uuid.UUID, body string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Recovered panic during offline fallback for conversation %s: %v", conv.ID, r)
			}
		}()
		s.notifyOffline(conv, sender, recipientUserID, body)
	}()
}

// notifyOffline records a fallback notification and invokes push dispatch.
// Both are independent side effects: failures are logged, never propagated.
func (s *ChatService) notifyOffline(conv *models.Conversation, sender *models.User, recipientUserID uuid.UUID, body string) {
	entityType := "conversation"
	entityID := conv.ID
	notification := models.Notification{
		UserID:            recipientUserID,
		Title:             "Pesan baru dari " + sender.FullName,
		Message:           "Anda menerima pesan baru. Tap untuk melihat.",
		NotificationType:  models.NotificationTypeNewMessage,
		Priority:          models.NotificationPriorityNormal,
		SentVia:           models.NotificationSentViaInApp,
		RelatedEntityType: &entityType,
		RelatedEntityID:   &entityID,
	}
	if err := s.db.Create(&notification).Error; err != nil {
		log.Printf("Failed to create new_message notification for user %s: %v", recipientUserID, err)
		return
	}

	if s.push == nil {
		return
	}
	err := s.push.Dispatch(recipientUserID, notification.Title, truncateBody(body, pushBodyLimit), map[string]string{
		"notification_id":   notification.ID.String(),
		"notification_type": models.NotificationTypeNewMessage,
		"conversation_id":   conv.ID.String(),
	})
	if err != nil {
		log.Printf("Failed to dispatch push for user %s: %v", recipientUserID, err)
	}
}

func truncateBody(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
