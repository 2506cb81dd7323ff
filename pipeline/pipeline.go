package pipeline

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Ack statuses returned to the webhook controller. Anything but an
// unhandled error is acknowledged with HTTP 200 so providers don't retry
// expected edge cases.
const (
	StatusSuccess         = "success"
	StatusNoValue         = "no_value"
	StatusChannelNotFound = "channel_not_found"
)

const subscribeMode = "subscribe"

// aiTimeout bounds the background AI continuation of one inbound message.
const aiTimeout = 90 * time.Second

// Pipeline wires the inbound stages together: verify/normalize, resolve,
// record, then (when the channel has AI enabled) aggregate, classify and
// dispatch as a background continuation.
type Pipeline struct {
	channels   ChannelRepository
	resolver   *Resolver
	recorder   *Recorder
	aggregator *Aggregator
	classifier *Classifier
	dispatcher *Dispatcher
	logger     *logrus.Entry
}

func NewPipeline(channels ChannelRepository, resolver *Resolver, recorder *Recorder, aggregator *Aggregator, classifier *Classifier, dispatcher *Dispatcher, logger *logrus.Entry) *Pipeline {
	return &Pipeline{
		channels:   channels,
		resolver:   resolver,
		recorder:   recorder,
		aggregator: aggregator,
		classifier: classifier,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// VerifyHandshake answers the provider's webhook verification request. The
// caller token must match some configured channel's verify token and the
// mode must be the subscribe literal; on success the challenge is echoed.
func (p *Pipeline) VerifyHandshake(ctx context.Context, mode, token, challenge string) (string, bool) {
	if mode != subscribeMode || token == "" || challenge == "" {
		return "", false
	}

	channels, err := p.channels.ListActive(ctx)
	if err != nil {
		p.logger.WithError(err).Error("failed to load channels for handshake")
		return "", false
	}

	for _, channel := range channels {
		if channel.VerifyToken == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(channel.VerifyToken), []byte(token)) == 1 {
			return challenge, true
		}
	}
	return "", false
}

// Process handles one webhook body and returns the ack status. Unmatched
// channels and payloads without message content are expected no-ops, never
// errors.
func (p *Pipeline) Process(ctx context.Context, rawBody []byte) string {
	env, err := ParseEnvelope(rawBody)
	if err != nil {
		p.logger.WithError(err).Warn("unparseable webhook payload")
		return StatusNoValue
	}

	switch env.Kind {
	case EnvelopeWhatsApp:
		return p.processWhatsApp(ctx, env)
	case EnvelopeInstagram:
		return p.processInstagram(ctx, env)
	}
	return StatusNoValue
}

func (p *Pipeline) processWhatsApp(ctx context.Context, env *Envelope) string {
	matched := false
	for _, value := range env.WhatsApp {
		channel, err := p.channels.ByPhoneNumberID(ctx, value.Metadata.PhoneNumberID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				p.logger.WithField("phone_number_id", value.Metadata.PhoneNumberID).Warn("no channel for whatsapp payload")
			} else {
				p.logger.WithError(err).Error("channel lookup failed")
			}
			continue
		}
		matched = true
		for _, in := range normalizeWhatsApp(*channel, value) {
			p.handleInbound(ctx, in)
		}
	}
	if !matched {
		return StatusChannelNotFound
	}
	return StatusSuccess
}

func (p *Pipeline) processInstagram(ctx context.Context, env *Envelope) string {
	matched := false
	for _, entry := range env.Instagram {
		channel, err := p.channels.ByInstagramAccountID(ctx, entry.AccountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				p.logger.WithField("instagram_account_id", entry.AccountID).Warn("no channel for instagram payload")
			} else {
				p.logger.WithError(err).Error("channel lookup failed")
			}
			continue
		}
		matched = true
		for _, in := range normalizeInstagram(*channel, entry) {
			p.handleInbound(ctx, in)
		}
	}
	if !matched {
		return StatusChannelNotFound
	}
	return StatusSuccess
}

// handleInbound runs the synchronous stages for one message, then hands off
// to the AI continuation when the channel allows it.
func (p *Pipeline) handleInbound(ctx context.Context, in InboundMessage) {
	conv, created, err := p.resolver.Resolve(ctx, in)
	if err != nil {
		p.logger.WithError(err).Error("conversation resolution failed")
		return
	}

	if _, err := p.recorder.Record(ctx, conv, in); err != nil {
		if KindOf(err) == KindDuplicate {
			p.logger.WithFields(logrus.Fields{
				"conversation_id":     conv.ID,
				"external_message_id": in.ExternalMessageID,
			}).Info("duplicate delivery ignored")
			return
		}
		p.logger.WithError(err).Error("message recording failed")
		return
	}

	p.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"channel_id":      in.Channel.ID,
		"created":         created,
	}).Info("inbound message recorded")

	if in.Channel.AIEnabled {
		go p.continueAI(conv.ID, in)
	}
}

// continueAI is the background continuation: context aggregation,
// classification and dispatch. Failures here never touch the already
// committed inbound message.
func (p *Pipeline) continueAI(conversationID uint, in InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.WithField("panic", rec).Error("ai continuation panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), aiTimeout)
	defer cancel()

	// Re-read the conversation: the resolver's copy may be stale by now.
	conv, err := p.resolver.conversations.Get(ctx, conversationID)
	if err != nil {
		p.logger.WithError(err).Error("failed to reload conversation for ai continuation")
		return
	}

	crmContext := p.aggregator.BuildContext(ctx, conv)

	analysis, err := p.classifier.Classify(ctx, conv, crmContext, in)
	if err != nil {
		p.logger.WithError(err).Warn("classification failed; inbound message kept")
		return
	}

	p.dispatcher.Dispatch(ctx, conv, in, analysis)
}
