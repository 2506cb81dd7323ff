package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terracrm/models"
)

func waChannel(id uint) models.Channel {
	channel := models.Channel{
		Name:     "Vendas WhatsApp",
		Type:     models.ChannelTypeWhatsApp,
		IsActive: true,
	}
	channel.ID = id
	return channel
}

func inboundFrom(channel models.Channel, contactID string) InboundMessage {
	return InboundMessage{
		Channel:           channel,
		ExternalContactID: contactID,
		DisplayName:       "Maria",
		Content:           "quero informações",
		ContentType:       "text",
		ExternalMessageID: "wamid.1",
		Timestamp:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestResolver(convs *fakeConversations, customers *fakeCustomers, msgs *fakeMessages, gate *fakeGate, sender *fakeSender) *Resolver {
	return NewResolver(convs, customers, msgs, gate, sender, testLogger())
}

func TestResolveReturnsExistingOpenConversation(t *testing.T) {
	convs := newFakeConversations()
	existing := convs.add(models.Conversation{
		ChannelID:         1,
		ExternalContactID: "5511988887777",
		Status:            models.ConversationAIServed,
	})

	r := newTestResolver(convs, newFakeCustomers(), newFakeMessages(), newFakeGate(), &fakeSender{})

	conv, created, err := r.Resolve(context.Background(), inboundFrom(waChannel(1), "5511988887777"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, conv.ID)
}

func TestResolveCreatesConversation(t *testing.T) {
	convs := newFakeConversations()
	r := newTestResolver(convs, newFakeCustomers(), newFakeMessages(), newFakeGate(), &fakeSender{})

	in := inboundFrom(waChannel(1), "5511988887777")
	conv, created, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, conv.ID)
	assert.Equal(t, models.ConversationAwaiting, conv.Status)
	assert.Equal(t, models.ContactTypeNew, conv.ContactType)
	assert.Equal(t, "Maria", conv.ContactName)
	assert.Equal(t, "5511988887777", conv.ContactPhone)
	assert.True(t, conv.Unread)
	assert.Equal(t, in.Timestamp, conv.LastContactAt)
}

func TestResolveMatchesCustomerByPhone(t *testing.T) {
	customers := newFakeCustomers()
	customer := models.Customer{Name: "João Souza", Phone: "(11) 98888-7777", Email: "joao@example.com"}
	customer.ID = 42
	customers.customers[42] = customer

	convs := newFakeConversations()
	r := newTestResolver(convs, customers, newFakeMessages(), newFakeGate(), &fakeSender{})

	in := inboundFrom(waChannel(1), "5511988887777")
	in.DisplayName = ""
	conv, created, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, conv.CustomerID)
	assert.Equal(t, uint(42), *conv.CustomerID)
	assert.Equal(t, models.ContactTypeCustomer, conv.ContactType)
	assert.Equal(t, "João Souza", conv.ContactName)
	assert.Equal(t, "joao@example.com", conv.ContactEmail)
}

func TestResolveInstagramSkipsPhoneMatch(t *testing.T) {
	customers := newFakeCustomers()
	customer := models.Customer{Name: "João", Phone: "11988887777"}
	customer.ID = 1
	customers.customers[1] = customer

	channel := waChannel(2)
	channel.Type = models.ChannelTypeInstagram

	r := newTestResolver(newFakeConversations(), customers, newFakeMessages(), newFakeGate(), &fakeSender{})

	conv, created, err := r.Resolve(context.Background(), inboundFrom(channel, "ig-user-1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, conv.CustomerID)
	assert.Empty(t, conv.ContactPhone)
}

func TestResolveCreateConflictRereads(t *testing.T) {
	convs := newFakeConversations()
	convs.createErr = errors.New("duplicate key value")
	convs.createHook = func() {
		// A concurrent request won the race before the insert landed.
		convs.createHook = nil
		convs.add(models.Conversation{
			ChannelID:         1,
			ExternalContactID: "5511988887777",
			Status:            models.ConversationAwaiting,
		})
	}

	r := newTestResolver(convs, newFakeCustomers(), newFakeMessages(), newFakeGate(), &fakeSender{})

	conv, created, err := r.Resolve(context.Background(), inboundFrom(waChannel(1), "5511988887777"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotZero(t, conv.ID)
}

func TestResolveCreateFailureWithoutWinner(t *testing.T) {
	convs := newFakeConversations()
	convs.createErr = errors.New("db down")

	r := newTestResolver(convs, newFakeCustomers(), newFakeMessages(), newFakeGate(), &fakeSender{})

	_, _, err := r.Resolve(context.Background(), inboundFrom(waChannel(1), "5511988887777"))
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
}

func TestResolveProceedsWhenGateUnavailable(t *testing.T) {
	gate := newFakeGate()
	gate.gateErr = errors.New("redis: connection refused")

	convs := newFakeConversations()
	r := newTestResolver(convs, newFakeCustomers(), newFakeMessages(), gate, &fakeSender{})

	conv, created, err := r.Resolve(context.Background(), inboundFrom(waChannel(1), "5511988887777"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, conv.ID)
}

func TestResolveSendsWelcomeMessage(t *testing.T) {
	channel := waChannel(1)
	channel.WelcomeMessage = "Bem-vindo à Terra Nova!"

	msgs := newFakeMessages()
	sender := &fakeSender{}
	r := newTestResolver(newFakeConversations(), newFakeCustomers(), msgs, newFakeGate(), sender)

	conv, created, err := r.Resolve(context.Background(), inboundFrom(channel, "5511988887777"))
	require.NoError(t, err)
	assert.True(t, created)

	sent := sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Bem-vindo à Terra Nova!", sent[0].Text)
	assert.Equal(t, "5511988887777", sent[0].RecipientID)

	recorded := msgs.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, conv.ID, recorded[0].ConversationID)
	assert.Equal(t, models.SenderSystem, recorded[0].SenderKind)
	assert.Equal(t, models.DeliverySent, recorded[0].DeliveryStatus)
}

func TestResolveWelcomeDeliveryFailureRecordedAsFailed(t *testing.T) {
	channel := waChannel(1)
	channel.WelcomeMessage = "Olá!"

	msgs := newFakeMessages()
	sender := &fakeSender{sendErr: errors.New("provider 500")}
	r := newTestResolver(newFakeConversations(), newFakeCustomers(), msgs, newFakeGate(), sender)

	_, _, err := r.Resolve(context.Background(), inboundFrom(channel, "5511988887777"))
	require.NoError(t, err)

	recorded := msgs.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, models.DeliveryFailed, recorded[0].DeliveryStatus)
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "5511988887777", onlyDigits("+55 (11) 98888-7777"))
	assert.Equal(t, "", onlyDigits("ig-user"))
}
