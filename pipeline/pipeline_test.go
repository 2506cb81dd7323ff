package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terracrm/models"
)

type fakeChannels struct {
	channels []models.Channel
	listErr  error
}

func (f *fakeChannels) ListActive(context.Context) ([]models.Channel, error) {
	return f.channels, f.listErr
}

func (f *fakeChannels) ByPhoneNumberID(_ context.Context, phoneNumberID string) (*models.Channel, error) {
	for _, channel := range f.channels {
		if channel.Type == models.ChannelTypeWhatsApp && channel.PhoneNumberID == phoneNumberID {
			copied := channel
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeChannels) ByInstagramAccountID(_ context.Context, accountID string) (*models.Channel, error) {
	for _, channel := range f.channels {
		if channel.Type == models.ChannelTypeInstagram && channel.InstagramAccountID == accountID {
			copied := channel
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

type pipelineFixture struct {
	pipeline *Pipeline
	fixture  *dispatcherFixture
	channels *fakeChannels
	gate     *fakeGate
	invoker  *fakeInvoker
}

func newPipelineFixture(channels ...models.Channel) *pipelineFixture {
	f := newDispatcherFixture()
	gate := newFakeGate()
	invoker := &fakeInvoker{response: validAnalysisJSON()}
	chans := &fakeChannels{channels: channels}

	resolver := NewResolver(f.conversations, newFakeCustomers(), f.messages, gate, f.sender, testLogger())
	recorder := NewRecorder(f.messages, f.conversations, gate, f.broadcast, testLogger())
	aggregator := NewAggregator(newFakeCustomers(), f.leads, f.conversations, f.messages, f.listings, testLogger())
	classifier := NewClassifier(invoker, f.messages, testLogger())

	p := NewPipeline(chans, resolver, recorder, aggregator, classifier, f.dispatcher, testLogger())
	return &pipelineFixture{pipeline: p, fixture: f, channels: chans, gate: gate, invoker: invoker}
}

func TestVerifyHandshake(t *testing.T) {
	channel := waChannel(1)
	channel.VerifyToken = "terracrm-verify-token-01"
	pf := newPipelineFixture(channel)

	echo, ok := pf.pipeline.VerifyHandshake(context.Background(), "subscribe", "terracrm-verify-token-01", "challenge-123")
	assert.True(t, ok)
	assert.Equal(t, "challenge-123", echo)
}

func TestVerifyHandshakeRejectsBadToken(t *testing.T) {
	channel := waChannel(1)
	channel.VerifyToken = "terracrm-verify-token-01"
	pf := newPipelineFixture(channel)

	_, ok := pf.pipeline.VerifyHandshake(context.Background(), "subscribe", "wrong", "challenge-123")
	assert.False(t, ok)
}

func TestVerifyHandshakeRejectsBadMode(t *testing.T) {
	channel := waChannel(1)
	channel.VerifyToken = "terracrm-verify-token-01"
	pf := newPipelineFixture(channel)

	_, ok := pf.pipeline.VerifyHandshake(context.Background(), "unsubscribe", "terracrm-verify-token-01", "challenge-123")
	assert.False(t, ok)
}

func TestVerifyHandshakeChannelLoadFailure(t *testing.T) {
	pf := newPipelineFixture()
	pf.channels.listErr = errors.New("db down")

	_, ok := pf.pipeline.VerifyHandshake(context.Background(), "subscribe", "token", "challenge")
	assert.False(t, ok)
}

func TestProcessNoValuePayload(t *testing.T) {
	pf := newPipelineFixture()
	status := pf.pipeline.Process(context.Background(), []byte(`{"object":"whatsapp_business_account","entry":[]}`))
	assert.Equal(t, StatusNoValue, status)
}

func TestProcessUnparseablePayload(t *testing.T) {
	pf := newPipelineFixture()
	status := pf.pipeline.Process(context.Background(), []byte("{broken"))
	assert.Equal(t, StatusNoValue, status)
}

func TestProcessUnknownChannel(t *testing.T) {
	pf := newPipelineFixture() // no channels configured
	status := pf.pipeline.Process(context.Background(), []byte(waPayload))
	assert.Equal(t, StatusChannelNotFound, status)
	assert.Empty(t, pf.fixture.messages.all())
}

func TestProcessRecordsMessageWithAIDisabled(t *testing.T) {
	channel := waChannel(1)
	channel.PhoneNumberID = "pn-1"
	channel.AIEnabled = false
	pf := newPipelineFixture(channel)

	status := pf.pipeline.Process(context.Background(), []byte(waPayload))
	assert.Equal(t, StatusSuccess, status)

	msgs := pf.fixture.messages.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderContact, msgs[0].SenderKind)
	assert.Equal(t, "Olá, quero saber dos lotes", msgs[0].Content)

	conv, err := pf.fixture.conversations.FindOpen(context.Background(), 1, "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationAwaiting, conv.Status)
}

func TestProcessDuplicateDeliveryAcknowledged(t *testing.T) {
	channel := waChannel(1)
	channel.PhoneNumberID = "pn-1"
	channel.AIEnabled = false
	pf := newPipelineFixture(channel)

	assert.Equal(t, StatusSuccess, pf.pipeline.Process(context.Background(), []byte(waPayload)))
	assert.Equal(t, StatusSuccess, pf.pipeline.Process(context.Background(), []byte(waPayload)))

	assert.Len(t, pf.fixture.messages.all(), 1)
}

func TestProcessRunsAIContinuation(t *testing.T) {
	channel := waChannel(1)
	channel.PhoneNumberID = "pn-1"
	channel.AIEnabled = true
	pf := newPipelineFixture(channel)

	status := pf.pipeline.Process(context.Background(), []byte(waPayload))
	assert.Equal(t, StatusSuccess, status)

	// The continuation runs in the background: wait for the AI reply record.
	assert.Eventually(t, func() bool {
		for _, msg := range pf.fixture.messages.all() {
			if msg.SenderKind == models.SenderAI {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	sent := pf.fixture.sender.all()
	require.NotEmpty(t, sent)
	assert.Equal(t, "5511988887777", sent[len(sent)-1].RecipientID)
}

func TestProcessInstagramMessage(t *testing.T) {
	channel := models.Channel{
		Name:               "Perfil Instagram",
		Type:               models.ChannelTypeInstagram,
		InstagramAccountID: "ig-acct-9",
		IsActive:           true,
		AIEnabled:          false,
	}
	channel.ID = 3
	pf := newPipelineFixture(channel)

	status := pf.pipeline.Process(context.Background(), []byte(igPayload))
	assert.Equal(t, StatusSuccess, status)

	msgs := pf.fixture.messages.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tem lote disponível?", msgs[0].Content)

	conv, err := pf.fixture.conversations.FindOpen(context.Background(), 3, "ig-user-1")
	require.NoError(t, err)
	assert.Equal(t, "ig-user-1", conv.ExternalContactID)
}

func TestProcessMultipleMessagesInOnePayload(t *testing.T) {
	channel := waChannel(1)
	channel.PhoneNumberID = "pn-1"
	channel.AIEnabled = false
	pf := newPipelineFixture(channel)

	body := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "123",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "pn-1"},
					"messages": [
						{"from": "5511988887777", "id": "wamid.m1", "timestamp": "%d", "type": "text", "text": {"body": "primeira"}},
						{"from": "5511988887777", "id": "wamid.m2", "timestamp": "%d", "type": "text", "text": {"body": "segunda"}}
					]
				}
			}]
		}]
	}`, 1700000000, 1700000010)

	assert.Equal(t, StatusSuccess, pf.pipeline.Process(context.Background(), []byte(body)))
	assert.Len(t, pf.fixture.messages.all(), 2)
}
