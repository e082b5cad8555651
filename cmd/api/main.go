package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	config "github.com/wellmom/chat-service/configs"
	"github.com/wellmom/chat-service/database"
	"github.com/wellmom/chat-service/handlers"
	"github.com/wellmom/chat-service/jobs"
	"github.com/wellmom/chat-service/notifications"
	"github.com/wellmom/chat-service/routes"
	"github.com/wellmom/chat-service/services"
	ws "github.com/wellmom/chat-service/websocket"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedDemo()
	notifications.InitPushService()

	// The registry lives for the whole process and is handed to everything
	// that delivers frames. It is a reachability cache, not a store.
	registry := ws.NewRegistry()

	var push services.PushDispatcher
	if notifications.PushClient != nil {
		push = notifications.PushClient
	}
	chatService := services.NewChatService(database.DB, registry, push)

	c := cron.New()
	c.AddFunc("*/5 * * * *", jobs.DeliverScheduledNotifications(push))
	go c.Start()
	log.Println("✅ Cron job for scheduled notifications registered successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "WellMom Chat",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Jakarta",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to WellMom Chat API",
		})
	})

	routes.AuthRoutes(app)
	routes.ChatRoutes(app, handlers.NewChatHandler(chatService), handlers.NewWsHandler(chatService, registry))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	port := config.ConfigOr("PORT", "8080")
	log.Printf("✅ Server is running on port %s", port)
	err := app.Listen(":" + port)
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
