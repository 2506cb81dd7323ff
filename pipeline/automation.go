package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"terracrm/models"
)

const executorTimeout = 15 * time.Second

// AutomationEngine evaluates configured automation rules against the result
// of a processed message and invokes the external executor for matches.
// Pure predicate evaluation; the only side effect is the invocation itself.
type AutomationEngine struct {
	rules    AutomationRepository
	executor Executor
	logger   *logrus.Entry
}

func NewAutomationEngine(rules AutomationRepository, executor Executor, logger *logrus.Entry) *AutomationEngine {
	return &AutomationEngine{rules: rules, executor: executor, logger: logger}
}

// RuleMatches reports whether a rule's trigger applies to the conversation.
// aiServedBefore must reflect the conversation state before the current
// dispatch updated it.
func RuleMatches(rule models.AutomationRule, conv *models.Conversation, aiServedBefore bool) bool {
	switch rule.Trigger {
	case models.TriggerMessageReceived:
		return true
	case models.TriggerNewLead:
		return conv.ContactType == models.ContactTypeLead
	case models.TriggerConversationStarted:
		return !aiServedBefore
	}
	return false
}

// Fire evaluates all active rules and invokes matches asynchronously.
// Invocation failures are logged and never propagate to the caller.
func (e *AutomationEngine) Fire(ctx context.Context, conv *models.Conversation, analysis *Analysis, aiServedBefore bool) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("failed to load automation rules")
		return
	}

	execCtx := ExecutionContext{
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		LeadID:         conv.LeadID,
		ContactPhone:   conv.ContactPhone,
		ContactEmail:   conv.ContactEmail,
		Analysis:       analysis,
	}

	for _, rule := range rules {
		if !RuleMatches(rule, conv, aiServedBefore) {
			continue
		}
		rule := rule
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.logger.WithField("panic", rec).Error("automation invocation panicked")
				}
			}()

			invokeCtx, cancel := context.WithTimeout(context.Background(), executorTimeout)
			defer cancel()

			if err := e.executor.Invoke(invokeCtx, rule, execCtx); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"rule_id": rule.ID,
					"trigger": rule.Trigger,
				}).Warn("automation invocation failed")
			}
		}()
	}
}
