package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDashboardController(db *gorm.DB, logger *log.Logger) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: logger,
	}
}

// GetStats returns the operator dashboard counters
func (dc *DashboardController) GetStats(c *fiber.Ctx) error {
	today := time.Now().Truncate(24 * time.Hour)

	var openConversations int64
	dc.DB.Model(&models.Conversation{}).
		Where("status IN ?", models.OpenStatuses()).
		Count(&openConversations)

	var unreadConversations int64
	dc.DB.Model(&models.Conversation{}).
		Where("unread = true AND status IN ?", models.OpenStatuses()).
		Count(&unreadConversations)

	var transferred int64
	dc.DB.Model(&models.Conversation{}).
		Where("status = ?", models.ConversationTransferred).
		Count(&transferred)

	var leadsToday int64
	dc.DB.Model(&models.Lead{}).
		Where("created_at >= ?", today).
		Count(&leadsToday)

	var pendingTasks int64
	dc.DB.Model(&models.FollowUpTask{}).
		Where("status = 'pending'").
		Count(&pendingTasks)

	var messagesToday int64
	dc.DB.Model(&models.Message{}).
		Where("sent_at >= ?", today).
		Count(&messagesToday)

	// Intent distribution over the last 7 days
	type intentCount struct {
		Intent string `json:"intent"`
		Count  int64  `json:"count"`
	}
	var intents []intentCount
	dc.DB.Model(&models.Conversation{}).
		Select("last_intent AS intent, COUNT(*) AS count").
		Where("analyzed_at >= ? AND last_intent <> ''", time.Now().AddDate(0, 0, -7)).
		Group("last_intent").
		Order("count DESC").
		Scan(&intents)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"open_conversations":   openConversations,
		"unread_conversations": unreadConversations,
		"transferred":          transferred,
		"leads_today":          leadsToday,
		"pending_tasks":        pendingTasks,
		"messages_today":       messagesToday,
		"intents_last_7_days":  intents,
	}))
}

// GetNotifications returns the authenticated operator's notifications
func (dc *DashboardController) GetNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var notifications []models.Notification
	if err := dc.DB.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Limit(50).
		Find(&notifications).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notifications", err)
	}

	return c.JSON(utils.SuccessResponse(notifications))
}

// MarkNotificationRead flags one notification as read
func (dc *DashboardController) MarkNotificationRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	notificationID := c.Params("id")

	result := dc.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, user.ID).
		Update("read", true)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notification", result.Error)
	}

	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Notification marked as read",
	}))
}
