package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"terracrm/models"
)

const (
	creationLeaseTTL   = 15 * time.Second
	leaseRetryAttempts = 3
	leaseRetryDelay    = 150 * time.Millisecond
)

// Resolver finds or creates the open conversation for one inbound message.
// Creation is guarded by a per-(channel, contact) redis lease so two
// near-simultaneous messages from a new contact cannot both create a
// conversation.
type Resolver struct {
	conversations ConversationRepository
	customers     CustomerRepository
	messages      MessageRepository
	gate          Gatekeeper
	sender        Sender
	logger        *logrus.Entry
	now           func() time.Time
}

func NewResolver(conversations ConversationRepository, customers CustomerRepository, messages MessageRepository, gate Gatekeeper, sender Sender, logger *logrus.Entry) *Resolver {
	return &Resolver{
		conversations: conversations,
		customers:     customers,
		messages:      messages,
		gate:          gate,
		sender:        sender,
		logger:        logger,
		now:           time.Now,
	}
}

// Resolve returns the open conversation for the message's (channel,
// contact) pair, creating one when none exists. The second return value is
// true when a conversation was created.
func (r *Resolver) Resolve(ctx context.Context, in InboundMessage) (*models.Conversation, bool, error) {
	key := leaseKey(in.Channel.ID, in.ExternalContactID)

	acquired := false
	for attempt := 0; attempt < leaseRetryAttempts; attempt++ {
		ok, err := r.gate.AcquireLease(ctx, key, creationLeaseTTL)
		if err != nil {
			// Redis unavailable: proceed unguarded rather than dropping the
			// message; the create-then-reread fallback still applies.
			r.logger.WithError(err).Warn("creation lease unavailable, proceeding unguarded")
			break
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(leaseRetryDelay * time.Duration(attempt+1))
	}
	if acquired {
		defer func() {
			if err := r.gate.ReleaseLease(ctx, key); err != nil {
				r.logger.WithError(err).Warn("failed to release creation lease")
			}
		}()
	}

	conv, err := r.conversations.FindOpen(ctx, in.Channel.ID, in.ExternalContactID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, stageErr(KindPersistence, err)
	}

	conv = &models.Conversation{
		ChannelID:         in.Channel.ID,
		ExternalContactID: in.ExternalContactID,
		ContactName:       in.DisplayName,
		ContactType:       models.ContactTypeNew,
		Status:            models.ConversationAwaiting,
		Unread:            true,
		LastContactAt:     in.Timestamp,
	}

	// Phone-based customer matching applies to WhatsApp only; Instagram
	// sender ids carry no phone information.
	if in.Channel.Type == models.ChannelTypeWhatsApp {
		digits := onlyDigits(in.ExternalContactID)
		conv.ContactPhone = digits
		if customer, merr := r.customers.MatchByPhoneDigits(ctx, digits); merr == nil {
			conv.CustomerID = &customer.ID
			conv.ContactType = models.ContactTypeCustomer
			if conv.ContactName == "" {
				conv.ContactName = customer.Name
			}
			if conv.ContactEmail == "" {
				conv.ContactEmail = customer.Email
			}
		} else if !errors.Is(merr, ErrNotFound) {
			r.logger.WithError(merr).Warn("customer phone match failed")
		}
	}

	if cerr := r.conversations.Create(ctx, conv); cerr != nil {
		// A concurrent request may have created the conversation between the
		// lookup and the insert (or the lease was unavailable). Re-read once
		// before giving up.
		if existing, ferr := r.conversations.FindOpen(ctx, in.Channel.ID, in.ExternalContactID); ferr == nil {
			return existing, false, nil
		}
		return nil, false, stageErr(KindPersistence, cerr)
	}

	r.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"channel_id":      in.Channel.ID,
		"contact_type":    conv.ContactType,
	}).Info("conversation created")

	if in.Channel.WelcomeMessage != "" {
		r.recordWelcome(ctx, conv, in.Channel)
	}

	return conv, true, nil
}

// recordWelcome delivers and records the channel's welcome message before
// the triggering inbound message is processed. Failures are logged, not
// propagated; a missing welcome must not drop the contact's message.
func (r *Resolver) recordWelcome(ctx context.Context, conv *models.Conversation, channel models.Channel) {
	status := models.DeliverySent
	if err := r.sender.SendText(ctx, channel, conv.ExternalContactID, channel.WelcomeMessage); err != nil {
		r.logger.WithError(err).Warn("welcome message delivery failed")
		status = models.DeliveryFailed
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderKind:     models.SenderSystem,
		SenderName:     channel.Name,
		Content:        channel.WelcomeMessage,
		ContentType:    "text",
		DeliveryStatus: status,
		SentAt:         r.now().UTC(),
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		r.logger.WithError(err).Warn("failed to record welcome message")
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
