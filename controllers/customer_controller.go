package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type CustomerController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCustomerController(db *gorm.DB, logger *log.Logger) *CustomerController {
	return &CustomerController{
		DB:     db,
		Logger: logger,
	}
}

// GetCustomers returns paginated customers with a name/phone search
func (cc *CustomerController) GetCustomers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	search := c.Query("search")

	query := cc.DB.Model(&models.Customer{})
	if search != "" {
		query = query.Where("name ILIKE ? OR phone LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	query.Count(&total)

	var customers []models.Customer
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&customers).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch customers", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  customers,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetCustomer returns one customer with their full CRM history
func (cc *CustomerController) GetCustomer(c *fiber.Ctx) error {
	customerID := c.Params("id")

	var customer models.Customer
	if err := cc.DB.
		Preload("Negotiations").
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC")
		}).
		Preload("Units").
		Preload("PortalMessages").
		First(&customer, customerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Customer not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch customer", err)
	}

	return c.JSON(utils.SuccessResponse(customer))
}
