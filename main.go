package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"terracrm/config"
	controller "terracrm/controllers"
	"terracrm/middleware"
	"terracrm/pipeline"
	"terracrm/routes"
	"terracrm/utils"
	"terracrm/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Redis (lease, dedup and rate limit storage)
	if err := config.ConnectRedis(); err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Initialize Sentry if configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Structured pipeline logger
	plog := logrus.New()
	plog.SetFormatter(&logrus.JSONFormatter{})
	pipelineLogger := plog.WithField("component", "pipeline")

	// Create Fiber app
	app := fiber.New()
	app.Use(recover.New())
	app.Use(middleware.CORS())

	// External collaborators
	store := pipeline.NewStore(config.DB)
	gate := pipeline.NewRedisGate(config.Redis)
	sender := utils.NewGraphSender(config.AppConfig.GraphAPIBaseURL)
	llm := utils.NewOpenAIClient(config.AppConfig.OpenAI.APIKey, config.AppConfig.OpenAI.Model, config.AppConfig.OpenAI.BaseURL)
	mailer := utils.NewNotificationMailer(config.AppConfig.SMTP)
	executor := utils.NewHTTPAutomationExecutor(config.AppConfig.AutomationExecutorURL)
	hub := controller.NewHub(log.New(os.Stdout, "WS: ", log.LstdFlags))

	// Pipeline stages
	resolver := pipeline.NewResolver(store.Conversations(), store.Customers(), store.Messages(), gate, sender, pipelineLogger)
	recorder := pipeline.NewRecorder(store.Messages(), store.Conversations(), gate, hub, pipelineLogger)
	aggregator := pipeline.NewAggregator(store.Customers(), store.Leads(), store.Conversations(), store.Messages(), store.Listings(), pipelineLogger)
	classifier := pipeline.NewClassifier(llm, store.Messages(), pipelineLogger)
	engine := pipeline.NewAutomationEngine(store.Automations(), executor, pipelineLogger)
	dispatcher := pipeline.NewDispatcher(pipeline.DispatcherDeps{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Leads:         store.Leads(),
		Listings:      store.Listings(),
		Tasks:         store.Tasks(),
		Notifications: store.Notifications(),
		Users:         store.Users(),
		Schedules:     store.Schedules(),
		Engine:        engine,
		Sender:        sender,
		Mailer:        mailer,
		Broadcast:     hub,
	}, pipelineLogger)

	p := pipeline.NewPipeline(store.Channels(), resolver, recorder, aggregator, classifier, dispatcher, pipelineLogger)

	// Start the scheduled message worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulerWorker := worker.NewSchedulerWorker(
		store.Schedules(),
		store.Conversations(),
		store.Messages(),
		sender,
		log.New(os.Stdout, "SCHEDULER: ", log.Ldate|log.Ltime|log.Lshortfile),
	)
	go schedulerWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, routes.Deps{
		Pipeline: p,
		Store:    store,
		Sender:   sender,
		Hub:      hub,
	})

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
