package pipeline

import (
	"context"
	"errors"
	"time"

	"terracrm/models"
)

// ErrNotFound is returned by repositories when a lookup has no result.
var ErrNotFound = errors.New("record not found")

// ChannelRepository exposes the configured channels to the pipeline.
type ChannelRepository interface {
	ListActive(ctx context.Context) ([]models.Channel, error)
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error)
	ByInstagramAccountID(ctx context.Context, accountID string) (*models.Channel, error)
}

// ConversationRepository persists conversation aggregates.
type ConversationRepository interface {
	Get(ctx context.Context, id uint) (*models.Conversation, error)
	FindOpen(ctx context.Context, channelID uint, externalContactID string) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// UpdateOpen applies fields only while the row is still in the open
	// status set; a conversation closed or transferred by an operator in
	// the meantime is left untouched.
	UpdateOpen(ctx context.Context, id uint, fields map[string]interface{}) error
	ListRecentByContact(ctx context.Context, externalContactID string, excludeID uint, limit int) ([]models.Conversation, error)
}

// MessageRepository persists immutable message records.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ExistsExternal(ctx context.Context, conversationID uint, externalMessageID string) (bool, error)
	ListRecent(ctx context.Context, conversationID uint, limit int) ([]models.Message, error)
}

// CustomerRepository reads CRM customer history for context aggregation.
type CustomerRepository interface {
	Get(ctx context.Context, id uint) (*models.Customer, error)
	MatchByPhoneDigits(ctx context.Context, digits string) (*models.Customer, error)
	Negotiations(ctx context.Context, customerID uint, limit int) ([]models.Negotiation, error)
	Payments(ctx context.Context, customerID uint) ([]models.CustomerPayment, error)
	Units(ctx context.Context, customerID uint) ([]models.Unit, error)
	PortalMessages(ctx context.Context, customerID uint, limit int) ([]models.PortalMessage, error)
}

// LeadRepository creates and reads CRM leads.
type LeadRepository interface {
	Get(ctx context.Context, id uint) (*models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) error
	Activities(ctx context.Context, leadID uint, limit int) ([]models.LeadActivity, error)
	AddActivity(ctx context.Context, activity *models.LeadActivity) error
}

// ListingRepository reads the active product catalog.
type ListingRepository interface {
	ListActive(ctx context.Context, limit int) ([]models.Listing, error)
}

// TaskRepository creates follow-up tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.FollowUpTask) error
}

// NotificationRepository creates per-staff notification records.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// UserRepository lists staff for notification fan-out.
type UserRepository interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// AutomationRepository reads the configured automation rules.
type AutomationRepository interface {
	ListActive(ctx context.Context) ([]models.AutomationRule, error)
}

// ScheduleRepository persists durable delayed follow-up messages.
type ScheduleRepository interface {
	Create(ctx context.Context, msg *models.ScheduledMessage) error
	DuePending(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error)
	SetStatus(ctx context.Context, id uint, status string) error
	CancelForConversation(ctx context.Context, conversationID uint) error
}
