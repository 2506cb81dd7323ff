package pipeline

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"terracrm/models"
)

// Store bundles the GORM-backed implementations of every repository the
// pipeline consumes. Controllers and workers share one instance.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Channels() ChannelRepository           { return channelStore{s.db} }
func (s *Store) Conversations() ConversationRepository { return conversationStore{s.db} }
func (s *Store) Messages() MessageRepository           { return messageStore{s.db} }
func (s *Store) Customers() CustomerRepository         { return customerStore{s.db} }
func (s *Store) Leads() LeadRepository                 { return leadStore{s.db} }
func (s *Store) Listings() ListingRepository           { return listingStore{s.db} }
func (s *Store) Tasks() TaskRepository                 { return taskStore{s.db} }
func (s *Store) Notifications() NotificationRepository { return notificationStore{s.db} }
func (s *Store) Users() UserRepository                 { return userStore{s.db} }
func (s *Store) Automations() AutomationRepository     { return automationStore{s.db} }
func (s *Store) Schedules() ScheduleRepository         { return scheduleStore{s.db} }

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- channels ---

type channelStore struct{ db *gorm.DB }

func (s channelStore) ListActive(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&channels).Error
	return channels, err
}

func (s channelStore) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).
		Where("type = ? AND phone_number_id = ? AND is_active = ?", models.ChannelTypeWhatsApp, phoneNumberID, true).
		First(&channel).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &channel, nil
}

func (s channelStore) ByInstagramAccountID(ctx context.Context, accountID string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).
		Where("type = ? AND instagram_account_id = ? AND is_active = ?", models.ChannelTypeInstagram, accountID, true).
		First(&channel).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &channel, nil
}

// --- conversations ---

type conversationStore struct{ db *gorm.DB }

func (s conversationStore) Get(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Preload("Channel").First(&conv, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &conv, nil
}

func (s conversationStore) FindOpen(ctx context.Context, channelID uint, externalContactID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND external_contact_id = ? AND status IN ?", channelID, externalContactID, models.OpenStatuses()).
		Order("id").
		First(&conv).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &conv, nil
}

func (s conversationStore) Create(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Create(conv).Error
}

func (s conversationStore) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(fields).Error
}

func (s conversationStore) UpdateOpen(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND status IN ?", id, models.OpenStatuses()).
		Updates(fields).Error
}

func (s conversationStore) ListRecentByContact(ctx context.Context, externalContactID string, excludeID uint, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("external_contact_id = ? AND id <> ?", externalContactID, excludeID).
		Order("last_contact_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

// --- messages ---

type messageStore struct{ db *gorm.DB }

func (s messageStore) Create(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s messageStore) ExistsExternal(ctx context.Context, conversationID uint, externalMessageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND external_message_id = ?", conversationID, externalMessageID).
		Count(&count).Error
	return count > 0, err
}

func (s messageStore) ListRecent(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// --- customers ---

type customerStore struct{ db *gorm.DB }

func (s customerStore) Get(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &customer, nil
}

// MatchByPhoneDigits substring-matches the digit form of the external
// contact id against stored customer phone numbers.
func (s customerStore) MatchByPhoneDigits(ctx context.Context, digits string) (*models.Customer, error) {
	if digits == "" {
		return nil, ErrNotFound
	}
	var customer models.Customer
	err := s.db.WithContext(ctx).
		Where("phone <> '' AND ? LIKE '%' || regexp_replace(phone, '\\D', '', 'g') || '%'", digits).
		First(&customer).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &customer, nil
}

func (s customerStore) Negotiations(ctx context.Context, customerID uint, limit int) ([]models.Negotiation, error) {
	var items []models.Negotiation
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s customerStore) Payments(ctx context.Context, customerID uint) ([]models.CustomerPayment, error) {
	var items []models.CustomerPayment
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("due_date").
		Find(&items).Error
	return items, err
}

func (s customerStore) Units(ctx context.Context, customerID uint) ([]models.Unit, error) {
	var items []models.Unit
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Find(&items).Error
	return items, err
}

func (s customerStore) PortalMessages(ctx context.Context, customerID uint, limit int) ([]models.PortalMessage, error) {
	var items []models.PortalMessage
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// --- leads ---

type leadStore struct{ db *gorm.DB }

func (s leadStore) Get(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).First(&lead, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &lead, nil
}

func (s leadStore) Create(ctx context.Context, lead *models.Lead) error {
	return s.db.WithContext(ctx).Create(lead).Error
}

func (s leadStore) Activities(ctx context.Context, leadID uint, limit int) ([]models.LeadActivity, error) {
	var items []models.LeadActivity
	err := s.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("activity_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s leadStore) AddActivity(ctx context.Context, activity *models.LeadActivity) error {
	return s.db.WithContext(ctx).Create(activity).Error
}

// --- listings ---

type listingStore struct{ db *gorm.DB }

func (s listingStore) ListActive(ctx context.Context, limit int) ([]models.Listing, error) {
	var items []models.Listing
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("starting_price").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// --- tasks / notifications / users ---

type taskStore struct{ db *gorm.DB }

func (s taskStore) Create(ctx context.Context, task *models.FollowUpTask) error {
	return s.db.WithContext(ctx).Create(task).Error
}

type notificationStore struct{ db *gorm.DB }

func (s notificationStore) Create(ctx context.Context, notification *models.Notification) error {
	return s.db.WithContext(ctx).Create(notification).Error
}

type userStore struct{ db *gorm.DB }

func (s userStore) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("is_admin = ? AND is_active = ?", true, true).
		Find(&users).Error
	return users, err
}

// --- automation rules ---

type automationStore struct{ db *gorm.DB }

func (s automationStore) ListActive(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&rules).Error
	return rules, err
}

// --- scheduled messages ---

type scheduleStore struct{ db *gorm.DB }

func (s scheduleStore) Create(ctx context.Context, msg *models.ScheduledMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s scheduleStore) DuePending(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	var items []models.ScheduledMessage
	err := s.db.WithContext(ctx).
		Where("status = ? AND deliver_at <= ?", models.ScheduledPending, now).
		Order("deliver_at").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s scheduleStore) SetStatus(ctx context.Context, id uint, status string) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s scheduleStore) CancelForConversation(ctx context.Context, conversationID uint) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("conversation_id = ? AND status = ?", conversationID, models.ScheduledPending).
		Update("status", models.ScheduledCancelled).Error
}
