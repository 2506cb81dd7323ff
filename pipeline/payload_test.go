package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terracrm/models"
)

const waPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "5511999990000", "phone_number_id": "pn-1"},
				"contacts": [{"profile": {"name": "Maria Silva"}, "wa_id": "5511988887777"}],
				"messages": [{
					"from": "5511988887777",
					"id": "wamid.abc",
					"timestamp": "1700000000",
					"type": "text",
					"text": {"body": "Olá, quero saber dos lotes"}
				}]
			}
		}]
	}]
}`

const igPayload = `{
	"object": "instagram",
	"entry": [{
		"id": "ig-acct-9",
		"time": 1700000000,
		"messaging": [{
			"sender": {"id": "ig-user-1"},
			"recipient": {"id": "ig-acct-9"},
			"timestamp": 1700000000000,
			"message": {"mid": "mid.123", "text": "tem lote disponível?"}
		}]
	}]
}`

func TestParseEnvelopeWhatsApp(t *testing.T) {
	env, err := ParseEnvelope([]byte(waPayload))
	require.NoError(t, err)
	assert.Equal(t, EnvelopeWhatsApp, env.Kind)
	require.Len(t, env.WhatsApp, 1)
	assert.Equal(t, "pn-1", env.WhatsApp[0].Metadata.PhoneNumberID)
	require.Len(t, env.WhatsApp[0].Messages, 1)
}

func TestParseEnvelopeInstagram(t *testing.T) {
	env, err := ParseEnvelope([]byte(igPayload))
	require.NoError(t, err)
	assert.Equal(t, EnvelopeInstagram, env.Kind)
	require.Len(t, env.Instagram, 1)
	assert.Equal(t, "ig-acct-9", env.Instagram[0].AccountID)
}

func TestParseEnvelopeStatusOnlyPayload(t *testing.T) {
	// Delivery receipts carry changes without a messages array.
	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	env, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, EnvelopeNone, env.Kind)
}

func TestParseEnvelopeMalformed(t *testing.T) {
	_, err := ParseEnvelope([]byte("{not json"))
	assert.Error(t, err)
}

func TestNormalizeWhatsApp(t *testing.T) {
	env, err := ParseEnvelope([]byte(waPayload))
	require.NoError(t, err)

	channel := models.Channel{Type: models.ChannelTypeWhatsApp, Name: "Vendas"}
	channel.ID = 7

	msgs := normalizeWhatsApp(channel, env.WhatsApp[0])
	require.Len(t, msgs, 1)

	in := msgs[0]
	assert.Equal(t, "5511988887777", in.ExternalContactID)
	assert.Equal(t, "Maria Silva", in.DisplayName)
	assert.Equal(t, "Olá, quero saber dos lotes", in.Content)
	assert.Equal(t, "text", in.ContentType)
	assert.Equal(t, "wamid.abc", in.ExternalMessageID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), in.Timestamp)
	assert.Equal(t, uint(7), in.Channel.ID)
}

func TestNormalizeWhatsAppCaptionFallback(t *testing.T) {
	value := waValue{}
	value.Messages = []waMessage{{From: "551100", ID: "wamid.img", Timestamp: "1700000000", Type: "image"}}
	value.Messages[0].Image.Caption = "foto do terreno"

	msgs := normalizeWhatsApp(models.Channel{}, value)
	require.Len(t, msgs, 1)
	assert.Equal(t, "foto do terreno", msgs[0].Content)
	assert.Equal(t, "image", msgs[0].ContentType)
}

func TestNormalizeInstagram(t *testing.T) {
	env, err := ParseEnvelope([]byte(igPayload))
	require.NoError(t, err)

	channel := models.Channel{Type: models.ChannelTypeInstagram}
	channel.ID = 3

	msgs := normalizeInstagram(channel, env.Instagram[0])
	require.Len(t, msgs, 1)
	assert.Equal(t, "ig-user-1", msgs[0].ExternalContactID)
	assert.Equal(t, "tem lote disponível?", msgs[0].Content)
	assert.Equal(t, "mid.123", msgs[0].ExternalMessageID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), msgs[0].Timestamp)
}

func TestNormalizeInstagramDropsEmptyEntries(t *testing.T) {
	entry := igEntryMessages{
		AccountID: "acct",
		Messaging: []igMessaging{{Timestamp: 1700000000000}},
	}
	msgs := normalizeInstagram(models.Channel{}, entry)
	assert.Empty(t, msgs)
}

func TestWaTimestampMalformedFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	got := waTimestamp("not-a-number")
	after := time.Now().UTC()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestWaContentEmpty(t *testing.T) {
	assert.Equal(t, "", waContent(waMessage{Type: "audio"}))
}
