package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type ChannelController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewChannelController(db *gorm.DB, logger *log.Logger) *ChannelController {
	return &ChannelController{
		DB:     db,
		Logger: logger,
	}
}

// CreateChannel registers a new messaging integration
func (cc *ChannelController) CreateChannel(c *fiber.Ctx) error {
	var input struct {
		Name               string `json:"name" validate:"required,max=100"`
		Type               string `json:"type" validate:"required,oneof=whatsapp instagram"`
		PhoneNumberID      string `json:"phone_number_id" validate:"omitempty,max=50"`
		InstagramAccountID string `json:"instagram_account_id" validate:"omitempty,max=50"`
		AccessToken        string `json:"access_token" validate:"required"`
		VerifyToken        string `json:"verify_token" validate:"required,min=16"`
		WelcomeMessage     string `json:"welcome_message" validate:"max=1000"`
		AIEnabled          *bool  `json:"ai_enabled"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Type == models.ChannelTypeWhatsApp && input.PhoneNumberID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "phone_number_id is required for whatsapp channels", nil)
	}
	if input.Type == models.ChannelTypeInstagram && input.InstagramAccountID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "instagram_account_id is required for instagram channels", nil)
	}

	channel := models.Channel{
		Name:               input.Name,
		Type:               input.Type,
		PhoneNumberID:      input.PhoneNumberID,
		InstagramAccountID: input.InstagramAccountID,
		AccessToken:        input.AccessToken,
		VerifyToken:        input.VerifyToken,
		WelcomeMessage:     input.WelcomeMessage,
		AIEnabled:          true,
		IsActive:           true,
	}
	if input.AIEnabled != nil {
		channel.AIEnabled = *input.AIEnabled
	}

	if err := cc.DB.Create(&channel).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create channel", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(channel))
}

// GetChannels returns all configured channels
func (cc *ChannelController) GetChannels(c *fiber.Ctx) error {
	var channels []models.Channel
	if err := cc.DB.Find(&channels).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch channels", err)
	}

	return c.JSON(utils.SuccessResponse(channels))
}

// GetChannel returns a single channel by ID
func (cc *ChannelController) GetChannel(c *fiber.Ctx) error {
	channelID := c.Params("id")

	var channel models.Channel
	if err := cc.DB.First(&channel, channelID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch channel", err)
	}

	return c.JSON(utils.SuccessResponse(channel))
}

// UpdateChannel updates channel settings
func (cc *ChannelController) UpdateChannel(c *fiber.Ctx) error {
	channelID := c.Params("id")

	var input struct {
		Name           string  `json:"name" validate:"omitempty,max=100"`
		AccessToken    string  `json:"access_token"`
		VerifyToken    string  `json:"verify_token" validate:"omitempty,min=16"`
		WelcomeMessage *string `json:"welcome_message"`
		AIEnabled      *bool   `json:"ai_enabled"`
		IsActive       *bool   `json:"is_active"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var channel models.Channel
	if err := cc.DB.First(&channel, channelID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch channel", err)
	}

	if input.Name != "" {
		channel.Name = input.Name
	}
	if input.AccessToken != "" {
		channel.AccessToken = input.AccessToken
	}
	if input.VerifyToken != "" {
		channel.VerifyToken = input.VerifyToken
	}
	if input.WelcomeMessage != nil {
		channel.WelcomeMessage = *input.WelcomeMessage
	}
	if input.AIEnabled != nil {
		channel.AIEnabled = *input.AIEnabled
	}
	if input.IsActive != nil {
		channel.IsActive = *input.IsActive
	}

	if err := cc.DB.Save(&channel).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update channel", err)
	}

	return c.JSON(utils.SuccessResponse(channel))
}

// DeleteChannel removes a channel
func (cc *ChannelController) DeleteChannel(c *fiber.Ctx) error {
	channelID := c.Params("id")

	result := cc.DB.Delete(&models.Channel{}, channelID)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete channel", result.Error)
	}

	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Channel deleted successfully",
	}))
}
