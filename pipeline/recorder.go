package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"terracrm/models"
)

// MediaPlaceholder is recorded when an inbound message carries neither a
// text body nor a caption.
const MediaPlaceholder = "[Media]"

// dedupWindow is how long a provider message id is remembered for
// re-delivery detection. Covers the life of an open conversation plus a
// generous grace period.
const dedupWindow = 7 * 24 * time.Hour

// Recorder persists inbound messages and refreshes conversation freshness.
// Re-delivered payloads (same external message id) are dropped before any
// write happens.
type Recorder struct {
	messages      MessageRepository
	conversations ConversationRepository
	gate          Gatekeeper
	broadcast     Broadcaster
	logger        *logrus.Entry
	now           func() time.Time
}

func NewRecorder(messages MessageRepository, conversations ConversationRepository, gate Gatekeeper, broadcast Broadcaster, logger *logrus.Entry) *Recorder {
	return &Recorder{
		messages:      messages,
		conversations: conversations,
		gate:          gate,
		broadcast:     broadcast,
		logger:        logger,
		now:           time.Now,
	}
}

// Record appends the inbound message to its conversation and bumps
// last_contact_at/unread. Returns a KindDuplicate stage error on provider
// re-delivery; callers acknowledge those with success and no side effects.
func (r *Recorder) Record(ctx context.Context, conv *models.Conversation, in InboundMessage) (*models.Message, error) {
	if in.ExternalMessageID != "" {
		fresh, err := r.gate.MarkSeen(ctx, dedupKey(in.Channel.ID, in.ExternalMessageID), dedupWindow)
		if err != nil {
			// Redis down: fall through to the database backstop.
			r.logger.WithError(err).Warn("dedup mark unavailable")
		} else if !fresh {
			return nil, stageErr(KindDuplicate, nil)
		}

		exists, err := r.messages.ExistsExternal(ctx, conv.ID, in.ExternalMessageID)
		if err != nil {
			return nil, stageErr(KindPersistence, err)
		}
		if exists {
			return nil, stageErr(KindDuplicate, nil)
		}
	}

	content := in.Content
	if content == "" {
		content = MediaPlaceholder
	}

	msg := &models.Message{
		ConversationID:    conv.ID,
		SenderKind:        models.SenderContact,
		SenderID:          in.ExternalContactID,
		SenderName:        in.DisplayName,
		Content:           content,
		ContentType:       in.ContentType,
		ExternalMessageID: in.ExternalMessageID,
		DeliveryStatus:    models.DeliveryReceived,
		SentAt:            in.Timestamp,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		// The message never made it to the database; drop the dedup mark so
		// the provider's retry is accepted instead of rejected as a replay.
		if in.ExternalMessageID != "" {
			if clearErr := r.gate.ClearSeen(ctx, dedupKey(in.Channel.ID, in.ExternalMessageID)); clearErr != nil {
				r.logger.WithError(clearErr).Warn("failed to clear dedup mark after insert failure")
			}
		}
		return nil, stageErr(KindPersistence, err)
	}

	// Conversation freshness is a separate write; the persistence layer
	// offers no multi-write transaction.
	err := r.conversations.Update(ctx, conv.ID, map[string]interface{}{
		"last_contact_at": r.now().UTC(),
		"unread":          true,
	})
	if err != nil {
		r.logger.WithError(err).Warn("failed to bump conversation freshness")
	}

	r.broadcast.Publish(Event{
		Type:           "message_received",
		ConversationID: conv.ID,
		ChannelID:      conv.ChannelID,
		Status:         conv.Status,
		Preview:        preview(content),
		At:             r.now().UTC(),
	})

	return msg, nil
}

func preview(content string) string {
	const max = 80
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
