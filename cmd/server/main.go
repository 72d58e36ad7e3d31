package main

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/rcmedia-dev/kerhome-sub002/internal/config"
	"github.com/rcmedia-dev/kerhome-sub002/internal/database"
	"github.com/rcmedia-dev/kerhome-sub002/internal/realtime"
	"github.com/rcmedia-dev/kerhome-sub002/internal/routes"
	"github.com/rcmedia-dev/kerhome-sub002/internal/services"
	chatws "github.com/rcmedia-dev/kerhome-sub002/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	db, err := database.Connect(context.Background(), cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// 3. Realtime fan-out: websocket hub, with Redis bridging nodes when
	// configured. Without Redis the hub publishes to local clients only.
	hub := chatws.NewHub(logger)
	go hub.Run()

	var publisher realtime.Publisher = hub
	if cfg.RealtimeEnabled() {
		redisClient, err := realtime.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		publisher = realtime.NewRedisPublisher(redisClient)
		bridge := realtime.NewBridge(redisClient, hub, logger)
		go func() {
			if err := bridge.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Realtime bridge stopped")
			}
		}()
	}

	// 4. New-message webhook notifications via the queue, when configured.
	var notificationQueue *services.NotificationQueue
	if cfg.NotificationsEnabled() {
		notificationQueue, err = services.NewNotificationQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create notification queue: %v", err)
		}
		defer notificationQueue.Close()

		worker, err := services.NewNotificationWorker(cfg.RedisURL, cfg.NotifyWebhookURL, logger)
		if err != nil {
			log.Fatalf("Failed to create notification worker: %v", err)
		}
		go func() {
			if err := worker.Run(context.Background()); err != nil {
				logger.WithError(err).Error("Notification worker stopped")
			}
		}()
	}

	// 5. Setup Fiber
	app := fiber.New()

	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, db, hub, publisher, notificationQueue, logger)

	// 6. Start Server
	logger.WithField("port", cfg.Port).Info("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func newLogger(appEnv string) *logrus.Logger {
	logger := logrus.New()
	if appEnv == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
