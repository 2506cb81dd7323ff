package pipeline

import (
	"context"

	"terracrm/models"
)

// Invoker is the LLM collaborator: one prompt in, one structured JSON
// document out. Fallible; no retry at this layer.
type Invoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
}

// Sender delivers outbound text to the provider for a given channel.
// Delivery is best effort; failures are recorded, never retried here.
type Sender interface {
	SendText(ctx context.Context, channel models.Channel, recipientID, text string) error
}

// Mailer delivers staff notification emails.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// Executor invokes an external automation function for a matched rule.
// Fire-and-forget from the pipeline's perspective.
type Executor interface {
	Invoke(ctx context.Context, rule models.AutomationRule, execCtx ExecutionContext) error
}

// NopSender discards outbound messages; useful in tests and for channels
// without delivery configured.
type NopSender struct{}

func (NopSender) SendText(context.Context, models.Channel, string, string) error { return nil }

// NopMailer discards notification emails.
type NopMailer struct{}

func (NopMailer) Send([]string, string, string) error { return nil }
