package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/henryq1230/easydeals-backend/cache"
	"github.com/henryq1230/easydeals-backend/config"
	"github.com/henryq1230/easydeals-backend/database"
	"github.com/henryq1230/easydeals-backend/gateway"
	kafkax "github.com/henryq1230/easydeals-backend/kafka"
	"github.com/henryq1230/easydeals-backend/middleware"
	"github.com/henryq1230/easydeals-backend/pricing"
	"github.com/henryq1230/easydeals-backend/routes"
	"github.com/henryq1230/easydeals-backend/service"
	"github.com/henryq1230/easydeals-backend/split"
)

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	redisCache, err := cache.New(cfg.RedisAddr, logger)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisCache = cache.Disabled()
	}

	var notifier service.Notifier = service.NopNotifier{}
	producer, err := kafkax.NewProducer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Warn("kafka unavailable, notifications disabled", zap.Error(err))
	} else {
		defer producer.Close()
		notifier = producer
	}

	gw := gateway.NewTilopay(gateway.TilopayConfig{
		BaseURL:     cfg.TilopayBaseURL,
		APIKey:      cfg.TilopayAPIKey,
		SecretKey:   cfg.TilopaySecretKey,
		PlatformKey: cfg.TilopayPlatformKey,
		FrontendURL: cfg.FrontendURL,
		BackendURL:  cfg.BackendURL,
	}, logger)

	payments := service.NewPaymentService(db, gw, split.Config{
		DefaultPlatformRate:    cfg.CommissionRate,
		DriverCutRate:          cfg.DriverCutRate,
		PlatformSubmerchantKey: cfg.PlatformSubmerchantKey,
	}, time.Duration(cfg.PaymentExpiryMinutes)*time.Minute, notifier, redisCache, logger)

	orders := service.NewOrderService(db, payments,
		service.StateMachine{StrictSequence: cfg.StrictStatusSequence},
		pricing.Config{
			TaxRate:            cfg.TaxRate,
			CommissionRate:     cfg.CommissionRate,
			DefaultDeliveryFee: cfg.DefaultDeliveryFee,
		}, notifier, redisCache, logger)

	if consumer, err := kafkax.NewConsumer(cfg.KafkaBroker, logger); err != nil {
		logger.Warn("kafka consumer unavailable, payout events disabled", zap.Error(err))
	} else if err := consumer.Consume(kafkax.PayoutTopic, kafkax.PayoutResultHandler(db, logger)); err != nil {
		logger.Warn("failed to subscribe to payout topic", zap.Error(err))
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := middleware.AuthRequired(cfg.JWTSecret, db)
	routes.RegisterOrderRoutes(app, orders, auth)
	routes.RegisterPaymentRoutes(app, payments, auth)

	logger.Info("starting api", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
