package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/rcmedia-dev/kerhome-sub002/internal/config"
	"github.com/rcmedia-dev/kerhome-sub002/internal/handlers"
	"github.com/rcmedia-dev/kerhome-sub002/internal/middleware"
	"github.com/rcmedia-dev/kerhome-sub002/internal/realtime"
	"github.com/rcmedia-dev/kerhome-sub002/internal/repository"
	"github.com/rcmedia-dev/kerhome-sub002/internal/services"
	chatws "github.com/rcmedia-dev/kerhome-sub002/internal/websocket"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	hub *chatws.Hub,
	publisher realtime.Publisher,
	notificationQueue *services.NotificationQueue,
	logger *logrus.Logger,
) {
	profileRepo := repository.NewProfileRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.StorageEnabled() {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	var notifier services.MessageNotifier
	if notificationQueue != nil {
		notifier = notificationQueue
	}

	chatService := services.NewChatService(db, conversationRepo, messageRepo, profileRepo, publisher, notifier, logger)
	contactService := services.NewContactService(profileRepo)

	chatHandler := handlers.NewChatHandler(chatService, hub, cfg.JWTSecret)
	contactHandler := handlers.NewContactHandler(contactService)
	profileHandler := handlers.NewProfileHandler(profileRepo, storageService)
	attachmentHandler := handlers.NewAttachmentHandler(storageService)

	api := app.Group("/api")
	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Patch("/:id/read", chatHandler.MarkConversationRead)

	authProtected.Get("/contacts", contactHandler.SearchContacts)

	profiles := authProtected.Group("/profiles")
	profiles.Get("/me", profileHandler.GetMyProfile)
	profiles.Put("/me", profileHandler.UpdateMyProfile)
	profiles.Post("/me/avatar", profileHandler.UploadAvatar)

	authProtected.Post("/chat/attachments", attachmentHandler.UploadAttachment)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
