package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terracrm/models"
	"terracrm/pipeline"
)

type stubSchedules struct {
	mu    sync.Mutex
	items []models.ScheduledMessage
}

func (s *stubSchedules) Create(_ context.Context, msg *models.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uint(len(s.items) + 1)
	s.items = append(s.items, *msg)
	return nil
}

func (s *stubSchedules) DuePending(_ context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.ScheduledMessage
	for _, item := range s.items {
		if item.Status == models.ScheduledPending && !item.DeliverAt.After(now) {
			due = append(due, item)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (s *stubSchedules) SetStatus(_ context.Context, id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return pipeline.ErrNotFound
}

func (s *stubSchedules) CancelForConversation(_ context.Context, conversationID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ConversationID == conversationID && s.items[i].Status == models.ScheduledPending {
			s.items[i].Status = models.ScheduledCancelled
		}
	}
	return nil
}

func (s *stubSchedules) statusOf(id uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			return item.Status
		}
	}
	return ""
}

type stubConversations struct {
	conversations map[uint]*models.Conversation
}

func (s *stubConversations) Get(_ context.Context, id uint) (*models.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	return conv, nil
}

func (s *stubConversations) FindOpen(context.Context, uint, string) (*models.Conversation, error) {
	return nil, pipeline.ErrNotFound
}

func (s *stubConversations) Create(context.Context, *models.Conversation) error { return nil }

func (s *stubConversations) Update(context.Context, uint, map[string]interface{}) error { return nil }

func (s *stubConversations) UpdateOpen(context.Context, uint, map[string]interface{}) error {
	return nil
}

func (s *stubConversations) ListRecentByContact(context.Context, string, uint, int) ([]models.Conversation, error) {
	return nil, nil
}

type stubMessages struct {
	mu    sync.Mutex
	items []models.Message
}

func (s *stubMessages) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *msg)
	return nil
}

func (s *stubMessages) ExistsExternal(context.Context, uint, string) (bool, error) {
	return false, nil
}

func (s *stubMessages) ListRecent(context.Context, uint, int) ([]models.Message, error) {
	return nil, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *stubSender) SendText(_ context.Context, _ models.Channel, recipientID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return s.err
}

func newTestWorker(schedules *stubSchedules, conversations *stubConversations, messages *stubMessages, sender *stubSender) *SchedulerWorker {
	return NewSchedulerWorker(schedules, conversations, messages, sender, log.New(io.Discard, "", 0))
}

func pendingMessage(schedules *stubSchedules, conversationID uint, content string) models.ScheduledMessage {
	msg := models.ScheduledMessage{
		ConversationID: conversationID,
		Content:        content,
		DeliverAt:      time.Now().Add(-time.Minute),
		Status:         models.ScheduledPending,
	}
	_ = schedules.Create(context.Background(), &msg)
	return msg
}

func TestDeliverSendsAndMarksSent(t *testing.T) {
	conv := &models.Conversation{
		ChannelID:         1,
		ExternalContactID: "5511988887777",
		Status:            models.ConversationAIServed,
		Channel:           models.Channel{Type: models.ChannelTypeWhatsApp},
	}
	conv.ID = 7

	schedules := &stubSchedules{}
	messages := &stubMessages{}
	sender := &stubSender{}
	sw := newTestWorker(schedules, &stubConversations{conversations: map[uint]*models.Conversation{7: conv}}, messages, sender)

	scheduled := pendingMessage(schedules, 7, "Simulação de financiamento...")

	require.NoError(t, sw.deliver(context.Background(), scheduled))

	sender.mu.Lock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Simulação de financiamento...", sender.sent[0])
	sender.mu.Unlock()

	messages.mu.Lock()
	require.Len(t, messages.items, 1)
	assert.Equal(t, models.SenderAI, messages.items[0].SenderKind)
	assert.Equal(t, models.DeliverySent, messages.items[0].DeliveryStatus)
	assert.Equal(t, uint(7), messages.items[0].ConversationID)
	messages.mu.Unlock()

	assert.Equal(t, models.ScheduledSent, schedules.statusOf(scheduled.ID))
}

func TestDeliverSkipsClosedConversation(t *testing.T) {
	conv := &models.Conversation{
		ChannelID:         1,
		ExternalContactID: "5511988887777",
		Status:            models.ConversationClosed,
	}
	conv.ID = 7

	schedules := &stubSchedules{}
	messages := &stubMessages{}
	sender := &stubSender{}
	sw := newTestWorker(schedules, &stubConversations{conversations: map[uint]*models.Conversation{7: conv}}, messages, sender)

	scheduled := pendingMessage(schedules, 7, "tarde demais")

	require.NoError(t, sw.deliver(context.Background(), scheduled))

	sender.mu.Lock()
	assert.Empty(t, sender.sent)
	sender.mu.Unlock()
	assert.Equal(t, models.ScheduledSkipped, schedules.statusOf(scheduled.ID))
}

func TestDeliverSkipsMissingConversation(t *testing.T) {
	schedules := &stubSchedules{}
	sw := newTestWorker(schedules, &stubConversations{conversations: map[uint]*models.Conversation{}}, &stubMessages{}, &stubSender{})

	scheduled := pendingMessage(schedules, 99, "sem destino")

	require.NoError(t, sw.deliver(context.Background(), scheduled))
	assert.Equal(t, models.ScheduledSkipped, schedules.statusOf(scheduled.ID))
}

func TestDeliverRecordsFailedSendAndConsumesRow(t *testing.T) {
	conv := &models.Conversation{
		ChannelID:         1,
		ExternalContactID: "5511988887777",
		Status:            models.ConversationAIServed,
	}
	conv.ID = 7

	schedules := &stubSchedules{}
	messages := &stubMessages{}
	sender := &stubSender{err: errors.New("provider 500")}
	sw := newTestWorker(schedules, &stubConversations{conversations: map[uint]*models.Conversation{7: conv}}, messages, sender)

	scheduled := pendingMessage(schedules, 7, "tenta mesmo assim")

	require.NoError(t, sw.deliver(context.Background(), scheduled))

	messages.mu.Lock()
	require.Len(t, messages.items, 1)
	assert.Equal(t, models.DeliveryFailed, messages.items[0].DeliveryStatus)
	messages.mu.Unlock()

	// Failed provider calls are not retried: the row is consumed.
	assert.Equal(t, models.ScheduledSent, schedules.statusOf(scheduled.ID))
}

func TestProcessDueDeliversBatch(t *testing.T) {
	conv := &models.Conversation{
		ChannelID:         1,
		ExternalContactID: "5511988887777",
		Status:            models.ConversationAIServed,
	}
	conv.ID = 7

	schedules := &stubSchedules{}
	messages := &stubMessages{}
	sender := &stubSender{}
	sw := newTestWorker(schedules, &stubConversations{conversations: map[uint]*models.Conversation{7: conv}}, messages, sender)

	pendingMessage(schedules, 7, "um")
	pendingMessage(schedules, 7, "dois")

	sw.processDue(context.Background())

	sender.mu.Lock()
	assert.Len(t, sender.sent, 2)
	sender.mu.Unlock()
}
