package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/pipeline"
	"terracrm/utils"
)

type ConversationController struct {
	DB        *gorm.DB
	Store     *pipeline.Store
	Sender    pipeline.Sender
	Broadcast pipeline.Broadcaster
	Logger    *log.Logger
}

func NewConversationController(db *gorm.DB, store *pipeline.Store, sender pipeline.Sender, broadcast pipeline.Broadcaster, logger *log.Logger) *ConversationController {
	return &ConversationController{
		DB:        db,
		Store:     store,
		Sender:    sender,
		Broadcast: broadcast,
		Logger:    logger,
	}
}

// GetConversations returns a paginated inbox with filters
func (cc *ConversationController) GetConversations(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	status := c.Query("status")
	channelID := c.Query("channel_id")
	unread := c.Query("unread")
	intent := c.Query("intent")

	query := cc.DB.Model(&models.Conversation{})

	if status != "" {
		if status == "open" {
			query = query.Where("status IN ?", models.OpenStatuses())
		} else {
			query = query.Where("status = ?", status)
		}
	}
	if channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}
	if unread == "true" {
		query = query.Where("unread = true")
	}
	if intent != "" {
		query = query.Where("last_intent = ?", intent)
	}

	var total int64
	query.Count(&total)

	var conversations []models.Conversation
	if err := query.Preload("Channel").
		Order("last_contact_at DESC").
		Offset(offset).Limit(limit).
		Find(&conversations).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversations", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  conversations,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetConversation returns one conversation with its message history
func (cc *ConversationController) GetConversation(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var conversation models.Conversation
	if err := cc.DB.Preload("Channel").First(&conversation, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversation", err)
	}

	var messages []models.Message
	if err := cc.DB.Where("conversation_id = ?", conversation.ID).
		Order("sent_at ASC").
		Find(&messages).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"conversation": conversation,
		"messages":     messages,
	}))
}

// MarkRead clears the unread flag
func (cc *ConversationController) MarkRead(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	result := cc.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("unread", false)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update conversation", result.Error)
	}

	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Conversation marked as read",
	}))
}

// Reply sends an operator message to the contact and records it
func (cc *ConversationController) Reply(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	conversationID := c.Params("id")

	var input struct {
		Content string `json:"content" validate:"required,max=4000"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var conversation models.Conversation
	if err := cc.DB.Preload("Channel").First(&conversation, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversation", err)
	}

	if !conversation.IsOpen() {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Conversation is not open", nil)
	}

	deliveryStatus := models.DeliverySent
	if err := cc.Sender.SendText(c.Context(), conversation.Channel, conversation.ExternalContactID, input.Content); err != nil {
		cc.Logger.Printf("Failed to deliver operator reply on conversation %d: %v", conversation.ID, err)
		deliveryStatus = models.DeliveryFailed
	}

	message := models.Message{
		ConversationID: conversation.ID,
		SenderKind:     models.SenderHumanAgent,
		SenderID:       strconv.FormatUint(uint64(user.ID), 10),
		SenderName:     user.Name,
		Content:        input.Content,
		ContentType:    "text",
		DeliveryStatus: deliveryStatus,
		SentAt:         time.Now(),
	}

	if err := cc.DB.Create(&message).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record message", err)
	}

	// An operator reply takes the conversation out of the AI's hands.
	if err := cc.DB.Model(&conversation).Updates(map[string]interface{}{
		"status": models.ConversationInHumanService,
		"unread": false,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update conversation", err)
	}

	cc.Broadcast.Publish(pipeline.Event{
		Type:           "message_sent",
		ConversationID: conversation.ID,
		ChannelID:      conversation.ChannelID,
		Status:         models.ConversationInHumanService,
		Preview:        input.Content,
		At:             message.SentAt,
	})

	if deliveryStatus == models.DeliveryFailed {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Message recorded but delivery failed", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(message))
}

// Transfer hands the conversation off to human service
func (cc *ConversationController) Transfer(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var conversation models.Conversation
	if err := cc.DB.First(&conversation, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversation", err)
	}

	if !conversation.IsOpen() {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Conversation is not open", nil)
	}

	if err := cc.DB.Model(&conversation).Update("status", models.ConversationTransferred).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update conversation", err)
	}

	cc.Broadcast.Publish(pipeline.Event{
		Type:           "conversation_updated",
		ConversationID: conversation.ID,
		ChannelID:      conversation.ChannelID,
		Status:         models.ConversationTransferred,
		At:             time.Now(),
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Conversation transferred to human service",
	}))
}

// Close ends the conversation and cancels any pending follow-up sends. A new
// inbound message from the same contact will open a fresh conversation.
func (cc *ConversationController) Close(c *fiber.Ctx) error {
	conversationID := c.Params("id")

	var conversation models.Conversation
	if err := cc.DB.First(&conversation, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversation", err)
	}

	if conversation.Status == models.ConversationClosed {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Conversation is already closed", nil)
	}

	if err := cc.DB.Model(&conversation).Updates(map[string]interface{}{
		"status": models.ConversationClosed,
		"unread": false,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update conversation", err)
	}

	if err := cc.Store.Schedules().CancelForConversation(c.Context(), conversation.ID); err != nil {
		cc.Logger.Printf("Failed to cancel scheduled messages for conversation %d: %v", conversation.ID, err)
	}

	cc.Broadcast.Publish(pipeline.Event{
		Type:           "conversation_updated",
		ConversationID: conversation.ID,
		ChannelID:      conversation.ChannelID,
		Status:         models.ConversationClosed,
		At:             time.Now(),
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Conversation closed",
	}))
}
