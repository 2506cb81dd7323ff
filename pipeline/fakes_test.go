package pipeline

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"terracrm/models"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

// --- conversations ---

type fakeConversations struct {
	mu     sync.Mutex
	items  map[uint]*models.Conversation
	nextID uint

	createErr  error
	createHook func() // runs before the insert, simulates a racing writer
	updates    []map[string]interface{}
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{items: make(map[uint]*models.Conversation)}
}

func (f *fakeConversations) add(conv models.Conversation) *models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.ID == 0 {
		f.nextID++
		conv.ID = f.nextID
	} else if conv.ID > f.nextID {
		f.nextID = conv.ID
	}
	stored := conv
	f.items[stored.ID] = &stored
	detached := stored
	return &detached
}

func (f *fakeConversations) Get(_ context.Context, id uint) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeConversations) FindOpen(_ context.Context, channelID uint, externalContactID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.items {
		if conv.ChannelID == channelID && conv.ExternalContactID == externalContactID && conv.IsOpen() {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeConversations) Create(_ context.Context, conv *models.Conversation) error {
	if f.createHook != nil {
		f.createHook()
	}
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv.ID = f.nextID
	stored := *conv
	f.items[conv.ID] = &stored
	return nil
}

func (f *fakeConversations) Update(_ context.Context, id uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	conv, ok := f.items[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := fields["status"]; ok {
		conv.Status = v.(string)
	}
	if v, ok := fields["unread"]; ok {
		conv.Unread = v.(bool)
	}
	if v, ok := fields["tags"]; ok {
		conv.Tags = v.(string)
	}
	if v, ok := fields["last_contact_at"]; ok {
		conv.LastContactAt = v.(time.Time)
	}
	if v, ok := fields["analyzed_at"]; ok {
		at := v.(time.Time)
		conv.AnalyzedAt = &at
	}
	return nil
}

func (f *fakeConversations) UpdateOpen(ctx context.Context, id uint, fields map[string]interface{}) error {
	f.mu.Lock()
	conv, ok := f.items[id]
	open := ok && conv.IsOpen()
	f.mu.Unlock()
	if !ok || !open {
		return nil
	}
	return f.Update(ctx, id, fields)
}

func (f *fakeConversations) ListRecentByContact(_ context.Context, externalContactID string, excludeID uint, limit int) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, conv := range f.items {
		if conv.ExternalContactID == externalContactID && conv.ID != excludeID {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastContactAt.After(out[j].LastContactAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeConversations) lastUpdate() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

func (f *fakeConversations) mergedUpdates() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	merged := make(map[string]interface{})
	for _, fields := range f.updates {
		for k, v := range fields {
			merged[k] = v
		}
	}
	return merged
}

// --- messages ---

type fakeMessages struct {
	mu     sync.Mutex
	items  []models.Message
	nextID uint

	createErr error
	listErr   error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{}
}

func (f *fakeMessages) Create(_ context.Context, msg *models.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	f.items = append(f.items, *msg)
	return nil
}

func (f *fakeMessages) ExistsExternal(_ context.Context, conversationID uint, externalMessageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.items {
		if msg.ConversationID == conversationID && msg.ExternalMessageID == externalMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) ListRecent(_ context.Context, conversationID uint, limit int) ([]models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, msg := range f.items {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessages) all() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.items...)
}

// --- customers ---

type fakeCustomers struct {
	mu           sync.Mutex
	customers    map[uint]models.Customer
	negotiations map[uint][]models.Negotiation
	payments     map[uint][]models.CustomerPayment
	units        map[uint][]models.Unit
	portal       map[uint][]models.PortalMessage

	getErr error
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{
		customers:    make(map[uint]models.Customer),
		negotiations: make(map[uint][]models.Negotiation),
		payments:     make(map[uint][]models.CustomerPayment),
		units:        make(map[uint][]models.Unit),
		portal:       make(map[uint][]models.PortalMessage),
	}
}

func (f *fakeCustomers) Get(_ context.Context, id uint) (*models.Customer, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	customer, ok := f.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &customer, nil
}

func (f *fakeCustomers) MatchByPhoneDigits(_ context.Context, digits string) (*models.Customer, error) {
	if digits == "" {
		return nil, ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, customer := range f.customers {
		phoneDigits := onlyDigits(customer.Phone)
		if phoneDigits != "" && strings.Contains(digits, phoneDigits) {
			copied := customer
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeCustomers) Negotiations(_ context.Context, customerID uint, limit int) ([]models.Negotiation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.negotiations[customerID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeCustomers) Payments(_ context.Context, customerID uint) ([]models.CustomerPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[customerID], nil
}

func (f *fakeCustomers) Units(_ context.Context, customerID uint) ([]models.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[customerID], nil
}

func (f *fakeCustomers) PortalMessages(_ context.Context, customerID uint, limit int) ([]models.PortalMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.portal[customerID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// --- leads ---

type fakeLeads struct {
	mu         sync.Mutex
	items      map[uint]models.Lead
	activities []models.LeadActivity
	nextID     uint

	createErr error
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{items: make(map[uint]models.Lead)}
}

func (f *fakeLeads) Get(_ context.Context, id uint) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &lead, nil
}

func (f *fakeLeads) Create(_ context.Context, lead *models.Lead) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	lead.ID = f.nextID
	f.items[lead.ID] = *lead
	return nil
}

func (f *fakeLeads) Activities(_ context.Context, leadID uint, limit int) ([]models.LeadActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LeadActivity
	for _, act := range f.activities {
		if act.LeadID == leadID {
			out = append(out, act)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLeads) AddActivity(_ context.Context, activity *models.LeadActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, *activity)
	return nil
}

// --- listings / tasks / notifications / users / automations / schedules ---

type fakeListings struct {
	items   []models.Listing
	listErr error
}

func (f *fakeListings) ListActive(_ context.Context, limit int) ([]models.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := f.items
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeTasks struct {
	mu    sync.Mutex
	items []models.FollowUpTask
}

func (f *fakeTasks) Create(_ context.Context, task *models.FollowUpTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task.ID = uint(len(f.items) + 1)
	f.items = append(f.items, *task)
	return nil
}

func (f *fakeTasks) all() []models.FollowUpTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.FollowUpTask(nil), f.items...)
}

type fakeNotifications struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, notification *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *notification)
	return nil
}

func (f *fakeNotifications) all() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.items...)
}

type fakeUsers struct {
	admins []models.User
}

func (f *fakeUsers) ListAdmins(context.Context) ([]models.User, error) {
	return f.admins, nil
}

type fakeAutomations struct {
	rules []models.AutomationRule
}

func (f *fakeAutomations) ListActive(context.Context) ([]models.AutomationRule, error) {
	return f.rules, nil
}

type fakeSchedules struct {
	mu    sync.Mutex
	items []models.ScheduledMessage
}

func (f *fakeSchedules) Create(_ context.Context, msg *models.ScheduledMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uint(len(f.items) + 1)
	f.items = append(f.items, *msg)
	return nil
}

func (f *fakeSchedules) DuePending(_ context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduledMessage
	for _, msg := range f.items {
		if msg.Status == models.ScheduledPending && !msg.DeliverAt.After(now) {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSchedules) SetStatus(_ context.Context, id uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeSchedules) CancelForConversation(_ context.Context, conversationID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ConversationID == conversationID && f.items[i].Status == models.ScheduledPending {
			f.items[i].Status = models.ScheduledCancelled
		}
	}
	return nil
}

func (f *fakeSchedules) all() []models.ScheduledMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ScheduledMessage(nil), f.items...)
}

// --- gate ---

type fakeGate struct {
	mu       sync.Mutex
	leases   map[string]bool
	seen     map[string]bool
	gateErr  error
	denyNext bool
}

func newFakeGate() *fakeGate {
	return &fakeGate{leases: make(map[string]bool), seen: make(map[string]bool)}
}

func (f *fakeGate) AcquireLease(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.gateErr != nil {
		return false, f.gateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyNext || f.leases[key] {
		return false, nil
	}
	f.leases[key] = true
	return true, nil
}

func (f *fakeGate) ReleaseLease(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leases, key)
	return nil
}

func (f *fakeGate) MarkSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.gateErr != nil {
		return false, f.gateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeGate) ClearSeen(_ context.Context, key string) error {
	if f.gateErr != nil {
		return f.gateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, key)
	return nil
}

// --- collaborators ---

type sentText struct {
	Channel     models.Channel
	RecipientID string
	Text        string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentText
	sendErr error
}

func (f *fakeSender) SendText(_ context.Context, channel models.Channel, recipientID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{Channel: channel, RecipientID: recipientID, Text: text})
	return f.sendErr
}

func (f *fakeSender) all() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

type fakeInvoker struct {
	response []byte
	err      error

	mu         sync.Mutex
	lastSystem string
	lastPrompt string
}

func (f *fakeInvoker) Invoke(_ context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	f.mu.Lock()
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	f.mu.Unlock()
	return f.response, f.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent [][]string
}

func (f *fakeMailer) Send(to []string, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

type fakeExecutor struct {
	mu          sync.Mutex
	invocations []models.AutomationRule
}

func (f *fakeExecutor) Invoke(_ context.Context, rule models.AutomationRule, _ ExecutionContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, rule)
	return nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

type captureBroadcast struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureBroadcast) Publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureBroadcast) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
