package handlers

import (
	"encoding/json"
	"log"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/wellmom/chat-service/database"
	"github.com/wellmom/chat-service/models"
	"github.com/wellmom/chat-service/services"
	ws "github.com/wellmom/chat-service/websocket"
)

type WsHandler struct {
	chat     *services.ChatService
	registry *ws.Registry
}

func NewWsHandler(chat *services.ChatService, registry *ws.Registry) *WsHandler {
	return &WsHandler{chat: chat, registry: registry}
}

type inboundFrame struct {
	Type string `json:"type"`
}

// ServeChat runs the persistent channel for one conversation. The bearer
// token arrives as a query parameter because browsers cannot set websocket
// headers.
func (h *WsHandler) ServeChat(c *websocketcontrib.Conn) {
	defer c.Close()

	user, conv, reason := h.authorizeChannel(c.Query("token"), c.Params("conversationId"))
	if reason != "" {
		closePolicy(c, reason)
		return
	}

	read := func() ([]byte, error) {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for user %s: %v", user.ID, err)
			} else {
				log.Printf("WebSocket read error for user %s: %v", user.ID, err)
			}
		}
		return data, err
	}

	// The registry fan-out and the frame loop's own replies share one
	// writer, so both go through the same serialized connection.
	h.runChannel(ws.NewSyncConn(c), read, user, conv)
}

// authorizeChannel resolves the token and conversation before the connection
// is accepted. A non-empty reason is the policy close reason sent back.
func (h *WsHandler) authorizeChannel(token, conversationParam string) (*models.User, *models.Conversation, string) {
	if token == "" {
		return nil, nil, "Token required"
	}

	claims, err := parseToken(token)
	if err != nil {
		return nil, nil, "Invalid token"
	}
	rawUserID, ok := claims["user_id"].(string)
	if !ok {
		return nil, nil, "Invalid token"
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, nil, "Invalid token"
	}
	var user models.User
	if err := database.DB.First(&user, "id = ? AND is_active = ?", userID, true).Error; err != nil {
		return nil, nil, "Invalid token"
	}

	conversationID, err := uuid.Parse(conversationParam)
	if err != nil {
		return nil, nil, "Conversation not found"
	}
	conv, err := h.chat.Conversations().GetByID(conversationID)
	if err != nil {
		return nil, nil, "Conversation not found"
	}
	if err := h.chat.AuthorizeAccess(&user, conv); err != nil {
		return nil, nil, "Access denied"
	}
	return &user, conv, ""
}

// runChannel registers the connection, announces it, and pumps inbound frames
// until read fails. The connection is unregistered before the function
// returns, so a caller observing the return also observes the removal.
func (h *WsHandler) runChannel(conn ws.Conn, read func() ([]byte, error), user *models.User, conv *models.Conversation) {
	h.registry.Register(conn, user.ID)
	defer h.registry.Remove(conn)

	_ = conn.WriteJSON(fiber.Map{
		"type":            "connection",
		"message":         "Connected to chat",
		"conversation_id": conv.ID,
		"user_id":         user.ID,
	})

	for {
		data, err := read()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.WriteJSON(fiber.Map{"type": "error", "message": "Invalid JSON format"})
			continue
		}

		switch frame.Type {
		case "ping":
			_ = conn.WriteJSON(fiber.Map{"type": "pong"})
		default:
			// Reserved. Messages are sent via the REST surface.
		}
	}
}

func closePolicy(c *websocketcontrib.Conn, reason string) {
	msg := websocketcontrib.FormatCloseMessage(websocketcontrib.ClosePolicyViolation, reason)
	if err := c.WriteMessage(websocketcontrib.CloseMessage, msg); err != nil {
		log.Printf("Failed to write close frame (%s): %v", reason, err)
	}
}
