package pipeline

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"terracrm/models"
)

// EnvelopeKind tells which provider shape a webhook payload carried.
type EnvelopeKind string

const (
	EnvelopeWhatsApp  EnvelopeKind = "whatsapp"
	EnvelopeInstagram EnvelopeKind = "instagram"
	EnvelopeNone      EnvelopeKind = "none"
)

// webhookPayload covers both provider shapes at the entry/change/value
// nesting level. Fields irrelevant to the pipeline are ignored.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string  `json:"field"`
			Value waValue `json:"value"`
		} `json:"changes"`
		Messaging []igMessaging `json:"messaging"`
	} `json:"entry"`
}

type waValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []waMessage `json:"messages"`
}

type waMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"` // epoch seconds
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    waMedia `json:"image"`
	Video    waMedia `json:"video"`
	Document waMedia `json:"document"`
	Audio    waMedia `json:"audio"`
}

type waMedia struct {
	Caption string `json:"caption"`
}

type igMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"` // epoch milliseconds
	Message   struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

// Envelope is the parsed webhook body with its provider classification.
type Envelope struct {
	Kind      EnvelopeKind
	WhatsApp  []waValue
	Instagram []igEntryMessages
}

type igEntryMessages struct {
	AccountID string
	Messaging []igMessaging
}

// ParseEnvelope extracts the entry/change/value nesting and classifies the
// payload by the presence of a "messages" (WhatsApp) or "messaging"
// (Instagram) field. WhatsApp is checked first; a payload carrying neither
// is a no-op envelope, not an error — providers retry on non-2xx, so
// ambiguous payloads must still be acknowledged.
func ParseEnvelope(rawBody []byte) (*Envelope, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, err
	}

	env := &Envelope{Kind: EnvelopeNone}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				env.WhatsApp = append(env.WhatsApp, change.Value)
			}
		}
		if len(entry.Messaging) > 0 {
			env.Instagram = append(env.Instagram, igEntryMessages{
				AccountID: entry.ID,
				Messaging: entry.Messaging,
			})
		}
	}

	if len(env.WhatsApp) > 0 {
		env.Kind = EnvelopeWhatsApp
	} else if len(env.Instagram) > 0 {
		env.Kind = EnvelopeInstagram
	}
	return env, nil
}

// normalizeWhatsApp maps every message in one change value to the canonical
// inbound form. One payload may carry several messages; each is processed
// independently.
func normalizeWhatsApp(channel models.Channel, value waValue) []InboundMessage {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	out := make([]InboundMessage, 0, len(value.Messages))
	for _, msg := range value.Messages {
		out = append(out, InboundMessage{
			Channel:           channel,
			ExternalContactID: msg.From,
			DisplayName:       names[msg.From],
			Content:           waContent(msg),
			ContentType:       waContentType(msg),
			ExternalMessageID: msg.ID,
			Timestamp:         waTimestamp(msg.Timestamp),
		})
	}
	return out
}

// normalizeInstagram maps every messaging entry to the canonical inbound
// form. Entries without a message body (read receipts, reactions) are
// dropped.
func normalizeInstagram(channel models.Channel, entry igEntryMessages) []InboundMessage {
	out := make([]InboundMessage, 0, len(entry.Messaging))
	for _, m := range entry.Messaging {
		if m.Message.MID == "" && strings.TrimSpace(m.Message.Text) == "" {
			continue
		}
		out = append(out, InboundMessage{
			Channel:           channel,
			ExternalContactID: m.Sender.ID,
			Content:           m.Message.Text,
			ContentType:       "text",
			ExternalMessageID: m.Message.MID,
			Timestamp:         time.UnixMilli(m.Timestamp).UTC(),
		})
	}
	return out
}

func waContent(msg waMessage) string {
	if body := strings.TrimSpace(msg.Text.Body); body != "" {
		return body
	}
	for _, media := range []waMedia{msg.Image, msg.Video, msg.Document, msg.Audio} {
		if caption := strings.TrimSpace(media.Caption); caption != "" {
			return caption
		}
	}
	return ""
}

func waContentType(msg waMessage) string {
	if msg.Type == "" {
		return "text"
	}
	return msg.Type
}

// waTimestamp parses the provider's epoch-seconds string. A malformed value
// falls back to the current time so the message is still recorded.
func waTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
