package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type ListingController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewListingController(db *gorm.DB, logger *log.Logger) *ListingController {
	return &ListingController{
		DB:     db,
		Logger: logger,
	}
}

// CreateListing adds a development to the catalog
func (lc *ListingController) CreateListing(c *fiber.Ctx) error {
	var input struct {
		Name          string  `json:"name" validate:"required,max=150"`
		Location      string  `json:"location" validate:"omitempty,max=200"`
		MinLotSize    float64 `json:"min_lot_size" validate:"omitempty,min=0"`
		MaxLotSize    float64 `json:"max_lot_size" validate:"omitempty,min=0"`
		StartingPrice float64 `json:"starting_price" validate:"required,min=0"`
		TotalLots     int     `json:"total_lots" validate:"omitempty,min=0"`
		AvailableLots int     `json:"available_lots" validate:"omitempty,min=0"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	listing := models.Listing{
		Name:          input.Name,
		Location:      input.Location,
		MinLotSize:    input.MinLotSize,
		MaxLotSize:    input.MaxLotSize,
		StartingPrice: input.StartingPrice,
		TotalLots:     input.TotalLots,
		AvailableLots: input.AvailableLots,
		Active:        true,
	}

	if err := lc.DB.Create(&listing).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create listing", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(listing))
}

// GetListings returns the catalog; pass active=true to filter
func (lc *ListingController) GetListings(c *fiber.Ctx) error {
	query := lc.DB.Model(&models.Listing{})

	if c.Query("active") == "true" {
		query = query.Where("active = true")
	}

	var listings []models.Listing
	if err := query.Order("starting_price ASC").Find(&listings).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch listings", err)
	}

	return c.JSON(utils.SuccessResponse(listings))
}

// UpdateListing updates catalog details
func (lc *ListingController) UpdateListing(c *fiber.Ctx) error {
	listingID := c.Params("id")

	var input struct {
		Name          string   `json:"name" validate:"omitempty,max=150"`
		Location      string   `json:"location" validate:"omitempty,max=200"`
		StartingPrice *float64 `json:"starting_price" validate:"omitempty"`
		AvailableLots *int     `json:"available_lots" validate:"omitempty"`
		Active        *bool    `json:"active"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var listing models.Listing
	if err := lc.DB.First(&listing, listingID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Listing not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch listing", err)
	}

	if input.Name != "" {
		listing.Name = input.Name
	}
	if input.Location != "" {
		listing.Location = input.Location
	}
	if input.StartingPrice != nil {
		listing.StartingPrice = *input.StartingPrice
	}
	if input.AvailableLots != nil {
		listing.AvailableLots = *input.AvailableLots
	}
	if input.Active != nil {
		listing.Active = *input.Active
	}

	if err := lc.DB.Save(&listing).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update listing", err)
	}

	return c.JSON(utils.SuccessResponse(listing))
}

// DeleteListing removes a listing from the catalog
func (lc *ListingController) DeleteListing(c *fiber.Ctx) error {
	listingID := c.Params("id")

	result := lc.DB.Delete(&models.Listing{}, listingID)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete listing", result.Error)
	}

	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Listing not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Listing deleted successfully",
	}))
}
