package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type AutomationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, logger *log.Logger) *AutomationController {
	return &AutomationController{
		DB:     db,
		Logger: logger,
	}
}

// CreateRule registers an automation rule
func (ac *AutomationController) CreateRule(c *fiber.Ctx) error {
	var input struct {
		Name           string `json:"name" validate:"required,max=100"`
		Trigger        string `json:"trigger" validate:"required,oneof=message_received new_lead conversation_started"`
		TargetFunction string `json:"target_function" validate:"required,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	rule := models.AutomationRule{
		Name:           input.Name,
		Trigger:        input.Trigger,
		TargetFunction: input.TargetFunction,
		Active:         true,
	}

	if err := ac.DB.Create(&rule).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create rule", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(rule))
}

// GetRules lists all automation rules
func (ac *AutomationController) GetRules(c *fiber.Ctx) error {
	var rules []models.AutomationRule
	if err := ac.DB.Find(&rules).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rules", err)
	}

	return c.JSON(utils.SuccessResponse(rules))
}

// UpdateRule changes rule configuration or toggles activation
func (ac *AutomationController) UpdateRule(c *fiber.Ctx) error {
	ruleID := c.Params("id")

	var input struct {
		Name           string `json:"name" validate:"omitempty,max=100"`
		Trigger        string `json:"trigger" validate:"omitempty,oneof=message_received new_lead conversation_started"`
		TargetFunction string `json:"target_function" validate:"omitempty,max=100"`
		Active         *bool  `json:"active"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var rule models.AutomationRule
	if err := ac.DB.First(&rule, ruleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}

	if input.Name != "" {
		rule.Name = input.Name
	}
	if input.Trigger != "" {
		rule.Trigger = input.Trigger
	}
	if input.TargetFunction != "" {
		rule.TargetFunction = input.TargetFunction
	}
	if input.Active != nil {
		rule.Active = *input.Active
	}

	if err := ac.DB.Save(&rule).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update rule", err)
	}

	return c.JSON(utils.SuccessResponse(rule))
}

// DeleteRule removes an automation rule
func (ac *AutomationController) DeleteRule(c *fiber.Ctx) error {
	ruleID := c.Params("id")

	result := ac.DB.Delete(&models.AutomationRule{}, ruleID)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete rule", result.Error)
	}

	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Rule deleted successfully",
	}))
}
