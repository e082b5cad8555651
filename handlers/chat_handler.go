package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/wellmom/chat-service/database"
	"github.com/wellmom/chat-service/models"
	"github.com/wellmom/chat-service/services"
	"github.com/wellmom/chat-service/store"
)

var validate = validator.New()

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func currentUser(c *fiber.Ctx) (*models.User, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	rawUserID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("token has no user_id claim")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := database.DB.First(&user, "id = ? AND is_active = ?", userID, true).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func pageParams(c *fiber.Ctx) (skip, limit int) {
	skip, _ = strconv.Atoi(c.Query("skip", "0"))
	limit, _ = strconv.Atoi(c.Query("limit", "50"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return skip, limit
}

func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrAccessDenied), errors.Is(err, services.ErrRecipientNotAssigned):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrRecipientProfileMissing),
		errors.Is(err, services.ErrProviderProfileMissing),
		errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, store.ErrConversationNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrNoProviderAssigned),
		errors.Is(err, services.ErrRecipientRequired),
		errors.Is(err, store.ErrEmptyBody),
		errors.Is(err, store.ErrBodyTooLong):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrConversationOutdated):
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// loadAuthorized fetches a conversation by path param and runs the
// capability check for the current user.
func (h *ChatHandler) loadAuthorized(c *fiber.Ctx, user *models.User) (*models.Conversation, error) {
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return nil, store.ErrConversationNotFound
	}
	conv, err := h.chat.Conversations().GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if err := h.chat.AuthorizeAccess(user, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

type conversationSummary struct {
	ID                  uuid.UUID  `json:"id"`
	RecipientID         uuid.UUID  `json:"recipient_id"`
	ProviderID          uuid.UUID  `json:"provider_id"`
	LastMessageAt       *time.Time `json:"last_message_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastMessageText     *string    `json:"last_message_text"`
	LastMessageSenderID *uuid.UUID `json:"last_message_sender_id"`
	UnreadCount         int64      `json:"unread_count"`
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	skip, limit := pageParams(c)

	var conversations []models.Conversation
	switch user.Role {
	case models.RoleRecipient:
		var recipient models.Recipient
		if err := database.DB.Where("user_id = ?", user.ID).First(&recipient).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient profile not found"})
		}
		conversations, err = h.chat.Conversations().ListForRecipient(recipient.ID, skip, limit)
	case models.RoleProvider:
		var provider models.Provider
		if err := database.DB.Where("user_id = ?", user.ID).First(&provider).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Provider profile not found"})
		}
		conversations, err = h.chat.Conversations().ListForProvider(provider.ID, skip, limit)
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only recipients and providers can access chat"})
	}
	if err != nil {
		return serviceError(c, err)
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for i := range conversations {
		conv := &conversations[i]
		summary := conversationSummary{
			ID:            conv.ID,
			RecipientID:   conv.RecipientID,
			ProviderID:    conv.ProviderID,
			LastMessageAt: conv.LastMessageAt,
			CreatedAt:     conv.CreatedAt,
			UpdatedAt:     conv.UpdatedAt,
		}
		if last, err := h.chat.Messages().LastMessage(conv.ID); err == nil && last != nil {
			summary.LastMessageText = &last.Body
			summary.LastMessageSenderID = &last.SenderUserID
		}
		if unread, err := h.chat.Messages().CountUnread(conv.ID, user.ID); err == nil {
			summary.UnreadCount = unread
		}
		summaries = append(summaries, summary)
	}

	return c.JSON(fiber.Map{"conversations": summaries, "total": len(summaries)})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	conv, err := h.loadAuthorized(c, user)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(conv)
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	conv, err := h.loadAuthorized(c, user)
	if err != nil {
		return serviceError(c, err)
	}
	skip, limit := pageParams(c)

	messages, err := h.chat.Messages().ListByConversation(conv.ID, skip, limit)
	if err != nil {
		return serviceError(c, err)
	}
	total, err := h.chat.Messages().CountByConversation(conv.ID)
	if err != nil {
		return serviceError(c, err)
	}
	views, err := h.chat.MessageViews(messages)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages": views,
		"total":    total,
		"has_more": int64(skip+len(messages)) < total,
	})
}

type SendMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id"`
	RecipientID    *uuid.UUID `json:"recipient_id"`
	MessageText    string     `json:"message_text" validate:"required,min=1,max=5000"`
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.ConversationID != nil {
		conv, err := h.chat.Conversations().GetByID(*req.ConversationID)
		if err != nil {
			return serviceError(c, err)
		}
		if err := h.chat.AuthorizeAccess(user, conv); err != nil {
			return serviceError(c, err)
		}
		view, err := h.chat.SendToConversation(user, conv, req.MessageText)
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}

	view, err := h.chat.Send(user, req.RecipientID, req.MessageText)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

type MarkReadRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids"`
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	conv, err := h.loadAuthorized(c, user)
	if err != nil {
		return serviceError(c, err)
	}

	var req MarkReadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
	}

	count, err := h.chat.MarkRead(user, conv, req.MessageIDs)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    fmt.Sprintf("%d pesan telah ditandai sebagai sudah dibaca.", count),
		"read_count": count,
	})
}

func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	conv, err := h.loadAuthorized(c, user)
	if err != nil {
		return serviceError(c, err)
	}

	unread, err := h.chat.Messages().CountUnread(conv.ID, user.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"conversation_id": conv.ID, "unread_count": unread})
}
