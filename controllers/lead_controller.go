package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewLeadController(db *gorm.DB, logger *log.Logger) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger,
	}
}

// CreateLead creates a new lead with validation
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	var input struct {
		Name     string  `json:"name" validate:"required,max=150"`
		Phone    string  `json:"phone" validate:"omitempty,max=30"`
		Email    string  `json:"email" validate:"omitempty,email"`
		Interest string  `json:"interest" validate:"omitempty,max=300"`
		Budget   float64 `json:"budget" validate:"omitempty,min=0"`
		City     string  `json:"city" validate:"omitempty,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead := models.Lead{
		Name:     input.Name,
		Phone:    input.Phone,
		Email:    input.Email,
		Source:   "manual",
		Interest: input.Interest,
		Budget:   input.Budget,
		City:     input.City,
		Status:   "new",
	}

	if err := lc.DB.Create(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", err)
	}

	activity := models.LeadActivity{
		LeadID:       lead.ID,
		ActivityType: "created",
		ActivityAt:   time.Now(),
		Details:      "Lead criado manualmente",
	}
	if err := lc.DB.Create(&activity).Error; err != nil {
		lc.Logger.Printf("Failed to record creation activity for lead %d: %v", lead.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads returns paginated leads with filters
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	status := c.Query("status")
	source := c.Query("source")
	city := c.Query("city")

	query := lc.DB.Model(&models.Lead{})

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if source != "" {
		query = query.Where("source = ?", source)
	}
	if city != "" {
		query = query.Where("city LIKE ?", "%"+city+"%")
	}

	var total int64
	query.Count(&total)

	var leads []models.Lead
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLead returns a single lead with its activity history
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	var lead models.Lead
	if err := lc.DB.Preload("Activities", func(db *gorm.DB) *gorm.DB {
		return db.Order("activity_at DESC")
	}).First(&lead, leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateLead updates lead details and records a status change activity
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	var input struct {
		Name     string   `json:"name" validate:"omitempty,max=150"`
		Phone    string   `json:"phone" validate:"omitempty,max=30"`
		Email    string   `json:"email" validate:"omitempty,email"`
		Interest string   `json:"interest" validate:"omitempty,max=300"`
		Budget   *float64 `json:"budget" validate:"omitempty"`
		City     string   `json:"city" validate:"omitempty,max=100"`
		Status   string   `json:"status" validate:"omitempty,oneof=new contacted qualified converted lost"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := lc.DB.First(&lead, leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	if input.Name != "" {
		lead.Name = input.Name
	}
	if input.Phone != "" {
		lead.Phone = input.Phone
	}
	if input.Email != "" {
		lead.Email = input.Email
	}
	if input.Interest != "" {
		lead.Interest = input.Interest
	}
	if input.Budget != nil {
		lead.Budget = *input.Budget
	}
	if input.City != "" {
		lead.City = input.City
	}

	statusChanged := input.Status != "" && input.Status != lead.Status
	if statusChanged {
		lead.Status = input.Status
	}

	if err := lc.DB.Save(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", err)
	}

	if statusChanged {
		activity := models.LeadActivity{
			LeadID:       lead.ID,
			ActivityType: "status_change",
			ActivityAt:   time.Now(),
			Details:      "Status alterado para " + lead.Status,
		}
		if err := lc.DB.Create(&activity).Error; err != nil {
			lc.Logger.Printf("Failed to record status change for lead %d: %v", lead.ID, err)
		}
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// AddActivity appends a note to the lead history
func (lc *LeadController) AddActivity(c *fiber.Ctx) error {
	leadID := c.Params("id")

	var input struct {
		Details string `json:"details" validate:"required,max=2000"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := lc.DB.First(&lead, leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}

	activity := models.LeadActivity{
		LeadID:       lead.ID,
		ActivityType: "note",
		ActivityAt:   time.Now(),
		Details:      input.Details,
	}

	if err := lc.DB.Create(&activity).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create activity", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(activity))
}

// DeleteLead deletes a lead and its activities
func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	leadID := c.Params("id")

	tx := lc.DB.Begin()

	if err := tx.Where("lead_id = ?", leadID).Delete(&models.LeadActivity{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead activities", err)
	}

	result := tx.Delete(&models.Lead{}, leadID)
	if result.Error != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead", result.Error)
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	tx.Commit()

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Lead deleted successfully",
	}))
}
