package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/opendisclosures/disclosure-backend/config"
	"github.com/opendisclosures/disclosure-backend/database"
	"github.com/opendisclosures/disclosure-backend/handlers"
	"github.com/opendisclosures/disclosure-backend/jobs"
	"github.com/opendisclosures/disclosure-backend/objectstore"
	"github.com/opendisclosures/disclosure-backend/services"
	"github.com/opendisclosures/disclosure-backend/store"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if level, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		logrus.SetLevel(level)
	}

	// Connect to database
	if err := database.ConnectWithConfig(cfg.DatabaseURL, &cfg.Database); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	servingStore := store.NewPostgres(database.DB)

	var objects objectstore.ObjectStore
	if cfg.Bucket != "" {
		gcs, err := objectstore.NewGCS(context.Background(), cfg.Bucket)
		if err != nil {
			log.Fatalf("Failed to create object store client: %v", err)
		}
		defer gcs.Close()
		objects = gcs
	} else {
		logrus.Warn("No bucket configured, ingest endpoints will reject events")
		objects = objectstore.NewInMemory()
	}

	// Initialize services
	masker := services.NewMaskingEngine(cfg.PIIHashSalt)
	ingestService := services.NewIngestService(objects, servingStore, masker, cfg)
	searchService := services.NewSearchService(servingStore, cfg.MaxQueryLimit)

	// Initialize handlers
	searchHandler := handlers.NewSearchHandler(searchService)
	ingestHandler := handlers.NewIngestHandler(ingestService, cfg.RawPrefix)
	metricsHandler := handlers.NewMetricsHandler(ingestService, searchService)

	// Periodic metrics summary
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		for range ticker.C {
			ingestService.Metrics().LogSummary()
			searchService.Metrics().LogSummary()
		}
	}()

	// Start pull listener when a subscription is configured
	if cfg.PubSubSubscription != "" {
		listener := jobs.NewIngestListenerJob(ingestService, cfg)
		go func() {
			if err := listener.Start(context.Background()); err != nil {
				logrus.WithField("error", err.Error()).Error("Ingest listener stopped")
			}
		}()
	}

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		code := fiber.StatusOK
		if err := database.HealthCheck(); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":    status,
			"timestamp": time.Now().Unix(),
		})
	})

	// Query routes
	app.Get("/", searchHandler.Lookup)
	app.Get("/search", searchHandler.Search)

	// Ingest routes
	app.Post("/events/ingest", ingestHandler.HandlePushEvent)

	api := app.Group("/api/v1")
	admin := api.Group("/admin")
	admin.Post("/ingest", ingestHandler.TriggerIngest)
	admin.Get("/metrics", metricsHandler.GetServiceMetrics)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
