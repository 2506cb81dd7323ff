package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"terracrm/models"
	"terracrm/utils"
)

type TaskController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTaskController(db *gorm.DB, logger *log.Logger) *TaskController {
	return &TaskController{
		DB:     db,
		Logger: logger,
	}
}

// GetTasks returns paginated follow-up tasks with filters
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	status := c.Query("status")
	taskType := c.Query("type")
	priority := c.Query("priority")

	query := tc.DB.Model(&models.FollowUpTask{})

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if taskType != "" {
		query = query.Where("type = ?", taskType)
	}
	if priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var total int64
	query.Count(&total)

	var tasks []models.FollowUpTask
	if err := query.Order("due_date ASC").Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tasks", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  tasks,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetTask returns a single task by ID
func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	taskID := c.Params("id")

	var task models.FollowUpTask
	if err := tc.DB.First(&task, taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch task", err)
	}

	return c.JSON(utils.SuccessResponse(task))
}

// UpdateTask updates task status and assignment
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	taskID := c.Params("id")

	var input struct {
		Status       string `json:"status" validate:"omitempty,oneof=pending done cancelled"`
		Priority     string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
		AssignedToID *uint  `json:"assigned_to_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var task models.FollowUpTask
	if err := tc.DB.First(&task, taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch task", err)
	}

	if input.Status != "" {
		task.Status = input.Status
	}
	if input.Priority != "" {
		task.Priority = input.Priority
	}
	if input.AssignedToID != nil {
		task.AssignedToID = input.AssignedToID
	}

	if err := tc.DB.Save(&task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", err)
	}

	return c.JSON(utils.SuccessResponse(task))
}
