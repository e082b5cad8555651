package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/wellmom/chat-service/handlers"
	"github.com/wellmom/chat-service/middleware"
)

func ChatRoutes(app *fiber.App, chat *handlers.ChatHandler, ws *handlers.WsHandler) {
	api := app.Group("/api/v1")

	conversations := api.Group("/chat", middleware.Protected(), middleware.ChatRoleRequired())
	conversations.Get("/conversations", chat.ListConversations)
	conversations.Get("/conversations/:conversationId", chat.GetConversation)
	conversations.Get("/conversations/:conversationId/messages", chat.GetMessages)
	conversations.Post("/messages", chat.SendMessage)
	conversations.Post("/conversations/:conversationId/mark-read", chat.MarkRead)
	conversations.Get("/conversations/:conversationId/unread-count", chat.UnreadCount)

	// Token auth happens inside the handler (query parameter), not in the
	// jwt middleware, so a policy violation can close with a reason frame.
	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws/chat/:conversationId", websocket.New(ws.ServeChat))
}
