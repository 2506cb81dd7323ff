package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "terracrm/controllers"
	"terracrm/middleware"
	"terracrm/pipeline"
)

// Deps carries the shared collaborators the route handlers need beyond the
// database handle.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    *pipeline.Store
	Sender   pipeline.Sender
	Hub      *controller.Hub
}

func SetupWebhookRoutes(app *fiber.App, deps Deps) {
	webhookLogger := log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime|log.Lshortfile)
	webhookController := controller.NewWebhookController(deps.Pipeline, webhookLogger)

	// Public endpoints hit by the providers; rate limited per source IP
	webhook := app.Group("/webhook", middleware.WebhookRateLimiter(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhook.Get("/", webhookController.VerifyWebhook)
	webhook.Post("/", webhookController.HandleWebhook)

	webhookLogger.Println("Webhook routes initialized successfully")
}

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)
	authController := controller.NewAuthController(db, authLogger)

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/login", authController.Login)
	auth.Post("/refresh", authController.Refresh)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", authController.Me)
	protectedAuth.Post("/register", middleware.AdminOnly(), authController.Register)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, deps Deps) {
	conversationController := controller.NewConversationController(db, deps.Store, deps.Sender, deps.Hub, log.New(os.Stdout, "CONVERSATION: ", log.LstdFlags))
	channelController := controller.NewChannelController(db, log.New(os.Stdout, "CHANNEL: ", log.LstdFlags))
	leadController := controller.NewLeadController(db, log.New(os.Stdout, "LEAD: ", log.LstdFlags))
	customerController := controller.NewCustomerController(db, log.New(os.Stdout, "CUSTOMER: ", log.LstdFlags))
	taskController := controller.NewTaskController(db, log.New(os.Stdout, "TASK: ", log.LstdFlags))
	listingController := controller.NewListingController(db, log.New(os.Stdout, "LISTING: ", log.LstdFlags))
	automationController := controller.NewAutomationController(db, log.New(os.Stdout, "AUTOMATION: ", log.LstdFlags))
	dashboardController := controller.NewDashboardController(db, log.New(os.Stdout, "DASHBOARD: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), middleware.APIRateLimiter(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Dashboard routes
	dashboard := api.Group("/dashboard")
	dashboard.Get("/stats", dashboardController.GetStats)
	dashboard.Get("/notifications", dashboardController.GetNotifications)
	dashboard.Put("/notifications/:id/read", dashboardController.MarkNotificationRead)

	// Conversation routes
	conversation := api.Group("/conversations")
	conversation.Get("/", conversationController.GetConversations)
	conversation.Get("/:id", conversationController.GetConversation)
	conversation.Put("/:id/read", conversationController.MarkRead)
	conversation.Post("/:id/reply", conversationController.Reply)
	conversation.Post("/:id/transfer", conversationController.Transfer)
	conversation.Post("/:id/close", conversationController.Close)

	// Channel routes (admin only)
	channel := api.Group("/channels", middleware.AdminOnly())
	channel.Post("/", channelController.CreateChannel)
	channel.Get("/", channelController.GetChannels)
	channel.Get("/:id", channelController.GetChannel)
	channel.Put("/:id", channelController.UpdateChannel)
	channel.Delete("/:id", channelController.DeleteChannel)

	// Lead routes
	lead := api.Group("/leads")
	lead.Post("/", leadController.CreateLead)
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Put("/:id", leadController.UpdateLead)
	lead.Post("/:id/activities", leadController.AddActivity)
	lead.Delete("/:id", leadController.DeleteLead)

	// Customer routes (read-only from this surface)
	customer := api.Group("/customers")
	customer.Get("/", customerController.GetCustomers)
	customer.Get("/:id", customerController.GetCustomer)

	// Task routes
	task := api.Group("/tasks")
	task.Get("/", taskController.GetTasks)
	task.Get("/:id", taskController.GetTask)
	task.Put("/:id", taskController.UpdateTask)

	// Listing routes
	listing := api.Group("/listings")
	listing.Get("/", listingController.GetListings)
	listing.Post("/", middleware.AdminOnly(), listingController.CreateListing)
	listing.Put("/:id", middleware.AdminOnly(), listingController.UpdateListing)
	listing.Delete("/:id", middleware.AdminOnly(), listingController.DeleteListing)

	// Automation routes (admin only)
	automation := api.Group("/automations", middleware.AdminOnly())
	automation.Post("/", automationController.CreateRule)
	automation.Get("/", automationController.GetRules)
	automation.Put("/:id", automationController.UpdateRule)
	automation.Delete("/:id", automationController.DeleteRule)

	// WebSocket route for the live inbox feed
	app.Get("/api/v1/events", websocket.New(deps.Hub.HandleEventsWS))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, deps Deps) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupWebhookRoutes(app, deps)
	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
