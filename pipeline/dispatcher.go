package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"terracrm/models"
)

// defaultFinancingDelay paces the financing follow-up so the simulation
// does not land on top of the main reply. A UX choice, not a correctness
// requirement.
const defaultFinancingDelay = 2 * time.Minute

// proposalMaxListings caps how many catalog entries a proposal suggests.
const proposalMaxListings = 3

// affordabilityFactor stretches the stated budget when filtering listings
// for a proposal: starting price must be at most 1.2x the budget.
const affordabilityFactor = 1.2

// FinancingScenario is one row of the fixed financing table.
type FinancingScenario struct {
	DownRate     float64
	Installments int
	DownPayment  float64
	Installment  float64
}

// FinancingScenarios computes the fixed 20/30/40% down-payment table over
// 120/100/80 installments for a stated budget.
func FinancingScenarios(budget float64) []FinancingScenario {
	plans := []struct {
		rate float64
		n    int
	}{
		{0.20, 120},
		{0.30, 100},
		{0.40, 80},
	}

	scenarios := make([]FinancingScenario, 0, len(plans))
	for _, plan := range plans {
		down := budget * plan.rate
		scenarios = append(scenarios, FinancingScenario{
			DownRate:     plan.rate,
			Installments: plan.n,
			DownPayment:  down,
			Installment:  (budget - down) / float64(plan.n),
		})
	}
	return scenarios
}

// Dispatcher turns a validated analysis into side effects and a state
// transition. Every proactive action is individually fault-isolated: one
// failing action never rolls back or blocks its siblings.
type Dispatcher struct {
	conversations ConversationRepository
	messages      MessageRepository
	leads         LeadRepository
	listings      ListingRepository
	tasks         TaskRepository
	notifications NotificationRepository
	users         UserRepository
	schedules     ScheduleRepository
	engine        *AutomationEngine
	sender        Sender
	mailer        Mailer
	broadcast     Broadcaster
	logger        *logrus.Entry

	now            func() time.Time
	financingDelay time.Duration
}

// DispatcherDeps collects the dispatcher's many collaborators.
type DispatcherDeps struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Leads         LeadRepository
	Listings      ListingRepository
	Tasks         TaskRepository
	Notifications NotificationRepository
	Users         UserRepository
	Schedules     ScheduleRepository
	Engine        *AutomationEngine
	Sender        Sender
	Mailer        Mailer
	Broadcast     Broadcaster
}

func NewDispatcher(deps DispatcherDeps, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		conversations:  deps.Conversations,
		messages:       deps.Messages,
		leads:          deps.Leads,
		listings:       deps.Listings,
		tasks:          deps.Tasks,
		notifications:  deps.Notifications,
		users:          deps.Users,
		schedules:      deps.Schedules,
		engine:         deps.Engine,
		sender:         deps.Sender,
		mailer:         deps.Mailer,
		broadcast:      deps.Broadcast,
		logger:         logger,
		now:            time.Now,
		financingDelay: defaultFinancingDelay,
	}
}

// Dispatch records the AI reply, executes the recommended proactive action,
// applies the conversation update and fires matching automation rules.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *models.Conversation, in InboundMessage, analysis *Analysis) {
	aiServedBefore := conv.Status == models.ConversationAIServed || conv.AnalyzedAt != nil

	d.recordReply(ctx, conv, in, analysis)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					d.logger.WithFields(logrus.Fields{"action": name, "panic": rec}).Error("proactive action panicked")
				}
			}()
			if err := fn(ctx); err != nil {
				d.logger.WithError(err).WithField("action", name).Warn("proactive action failed")
			}
		}()
	}

	switch analysis.AcaoProativaSugerida {
	case ActionCreateLead:
		run("create_lead", func(ctx context.Context) error { return d.createLead(ctx, conv, in, analysis) })
	case ActionScheduleVisit:
		run("schedule_visit", func(ctx context.Context) error { return d.scheduleVisit(ctx, conv, analysis) })
	case ActionSendProposal:
		run("send_proposal", func(ctx context.Context) error { return d.sendProposal(ctx, conv, analysis) })
	case ActionSimulateFinancing:
		run("simulate_financing", func(ctx context.Context) error { return d.simulateFinancing(ctx, conv, analysis) })
	}
	wg.Wait()

	d.applyConversationUpdate(ctx, conv, in, analysis)

	d.engine.Fire(ctx, conv, analysis, aiServedBefore)

	d.broadcast.Publish(Event{
		Type:           "conversation_updated",
		ConversationID: conv.ID,
		ChannelID:      conv.ChannelID,
		Status:         conv.Status,
		At:             d.now().UTC(),
	})
}

// recordReply persists the classifier's reply as an ai-sender message and
// pushes it to the provider. This happens regardless of the recommended
// proactive action.
func (d *Dispatcher) recordReply(ctx context.Context, conv *models.Conversation, in InboundMessage, analysis *Analysis) {
	status := models.DeliverySent
	if err := d.sender.SendText(ctx, in.Channel, conv.ExternalContactID, analysis.Resposta); err != nil {
		d.logger.WithError(err).Warn("ai reply delivery failed")
		status = models.DeliveryFailed
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderKind:     models.SenderAI,
		SenderName:     in.Channel.Name,
		Content:        analysis.Resposta,
		ContentType:    "text",
		DeliveryStatus: status,
		SentAt:         d.now().UTC(),
	}
	if err := d.messages.Create(ctx, msg); err != nil {
		d.logger.WithError(err).Warn("failed to record ai reply")
	}
}

// createLead captures a new lead. Guarded: the conversation must not be
// linked to a lead or customer already, and the classifier must have
// extracted a name.
func (d *Dispatcher) createLead(ctx context.Context, conv *models.Conversation, in InboundMessage, analysis *Analysis) error {
	if conv.LeadID != nil || conv.CustomerID != nil {
		return nil
	}
	collected := analysis.InformacoesColetadas
	if collected.Nome == nil || strings.TrimSpace(*collected.Nome) == "" {
		return nil
	}

	lead := &models.Lead{
		Name:   strings.TrimSpace(*collected.Nome),
		Phone:  conv.ContactPhone,
		Source: in.Channel.Type,
		Status: "new",
	}
	if collected.Telefone != nil && *collected.Telefone != "" {
		lead.Phone = onlyDigits(*collected.Telefone)
	}
	if collected.Email != nil && checkmail.ValidateFormat(*collected.Email) == nil {
		lead.Email = *collected.Email
	}
	if collected.Interesse != nil {
		lead.Interest = *collected.Interesse
	}
	if collected.Orcamento != nil {
		lead.Budget = *collected.Orcamento
	}
	if collected.LocalizacaoDesejada != nil {
		lead.City = *collected.LocalizacaoDesejada
	}

	if err := d.leads.Create(ctx, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}

	// Provenance entry so the CRM shows where the lead came from.
	details, _ := json.Marshal(collected)
	activity := &models.LeadActivity{
		LeadID:       lead.ID,
		ActivityType: "ai_capture",
		ActivityAt:   d.now().UTC(),
		Details:      string(details),
	}
	if err := d.leads.AddActivity(ctx, activity); err != nil {
		d.logger.WithError(err).Warn("failed to record lead provenance")
	}

	conv.LeadID = &lead.ID
	conv.ContactType = models.ContactTypeLead

	d.logger.WithFields(logrus.Fields{
		"lead_id":         lead.ID,
		"conversation_id": conv.ID,
	}).Info("lead captured")
	return nil
}

func (d *Dispatcher) scheduleVisit(ctx context.Context, conv *models.Conversation, analysis *Analysis) error {
	collected := analysis.InformacoesColetadas

	due := d.now().UTC()
	if collected.DataVisita != nil {
		if parsed, err := time.Parse("2006-01-02", *collected.DataVisita); err == nil {
			due = parsed
		}
	}

	priority := models.PriorityNormal
	if analysis.Urgencia == UrgencyUrgent {
		priority = models.PriorityUrgent
	}

	var details []string
	if collected.HoraVisita != nil {
		details = append(details, "horário: "+*collected.HoraVisita)
	}
	if collected.Interesse != nil {
		details = append(details, "interesse: "+*collected.Interesse)
	}
	if collected.Orcamento != nil {
		details = append(details, fmt.Sprintf("orçamento: R$%.2f", *collected.Orcamento))
	}

	task := &models.FollowUpTask{
		Type:           models.TaskTypeVisit,
		Title:          "Visita: " + contactLabel(conv),
		Description:    strings.Join(details, "; "),
		DueDate:        due,
		Priority:       priority,
		ConversationID: &conv.ID,
		LeadID:         conv.LeadID,
		CustomerID:     conv.CustomerID,
	}
	if err := d.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("create visit task: %w", err)
	}

	d.notifyAdmins(ctx, conv, "Nova visita a agendar",
		fmt.Sprintf("%s pediu uma visita (%s).", contactLabel(conv), due.Format("02/01/2006")))
	return nil
}

func (d *Dispatcher) sendProposal(ctx context.Context, conv *models.Conversation, analysis *Analysis) error {
	listings, err := d.listings.ListActive(ctx, maxCatalogListings)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	collected := analysis.InformacoesColetadas
	selected := make([]models.Listing, 0, proposalMaxListings)
	for _, listing := range listings {
		if collected.Orcamento != nil && listing.StartingPrice > *collected.Orcamento*affordabilityFactor {
			continue
		}
		selected = append(selected, listing)
		if len(selected) == proposalMaxListings {
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Proposta para %s\n", contactLabel(conv))
	if collected.Orcamento != nil {
		fmt.Fprintf(&b, "Orçamento informado: R$%.2f\n", *collected.Orcamento)
	}
	for _, l := range selected {
		fmt.Fprintf(&b, "- %s (%s): lotes a partir de R$%.2f\n", l.Name, l.Location, l.StartingPrice)
	}

	task := &models.FollowUpTask{
		Type:           models.TaskTypeProposal,
		Title:          "Proposta: " + contactLabel(conv),
		Description:    b.String(),
		DueDate:        d.now().UTC(),
		Priority:       models.PriorityHigh,
		ConversationID: &conv.ID,
		LeadID:         conv.LeadID,
		CustomerID:     conv.CustomerID,
	}
	if err := d.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("create proposal task: %w", err)
	}

	d.notifyAdmins(ctx, conv, "Proposta solicitada",
		fmt.Sprintf("%s aguarda uma proposta personalizada (%d empreendimentos sugeridos).", contactLabel(conv), len(selected)))
	return nil
}

// simulateFinancing computes the fixed scenario table and schedules a
// delayed follow-up message instead of replying synchronously.
func (d *Dispatcher) simulateFinancing(ctx context.Context, conv *models.Conversation, analysis *Analysis) error {
	collected := analysis.InformacoesColetadas
	if collected.Orcamento == nil || *collected.Orcamento <= 0 {
		d.logger.WithField("conversation_id", conv.ID).Info("financing simulation skipped: no stated budget")
		return nil
	}

	budget := *collected.Orcamento
	var b strings.Builder
	fmt.Fprintf(&b, "Simulação de financiamento para R$%.2f:\n", budget)
	for _, s := range FinancingScenarios(budget) {
		fmt.Fprintf(&b, "- Entrada de %.0f%% (R$%.2f): %d parcelas de R$%.2f\n",
			s.DownRate*100, s.DownPayment, s.Installments, s.Installment)
	}
	b.WriteString("Posso te passar mais detalhes de qualquer uma das opções!")

	scheduled := &models.ScheduledMessage{
		ConversationID: conv.ID,
		Content:        b.String(),
		DeliverAt:      d.now().UTC().Add(d.financingDelay),
		Status:         models.ScheduledPending,
	}
	if err := d.schedules.Create(ctx, scheduled); err != nil {
		return fmt.Errorf("schedule financing follow-up: %w", err)
	}
	return nil
}

// notifyAdmins fans out one notification per admin and a best-effort email.
// Notification failures never propagate.
func (d *Dispatcher) notifyAdmins(ctx context.Context, conv *models.Conversation, title, body string) {
	admins, err := d.users.ListAdmins(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("failed to list admins for notification")
		return
	}

	emails := make([]string, 0, len(admins))
	for _, admin := range admins {
		notification := &models.Notification{
			UserID:         admin.ID,
			Title:          title,
			Body:           body,
			ConversationID: &conv.ID,
		}
		if err := d.notifications.Create(ctx, notification); err != nil {
			d.logger.WithError(err).WithField("user_id", admin.ID).Warn("failed to create notification")
			continue
		}
		if admin.Email != "" {
			emails = append(emails, admin.Email)
		}
	}

	if len(emails) > 0 {
		if err := d.mailer.Send(emails, title, body); err != nil {
			d.logger.WithError(err).Warn("notification email delivery failed")
		}
	}
}

// applyConversationUpdate merges tags, overwrites extracted contact fields
// and advances the state machine. Status/priority/analysis updates are
// ordered by the triggering message's timestamp: a stale async continuation
// must not overwrite the result of a newer message. They are also written
// conditionally on the row still being open, so an operator closing or
// transferring the conversation while the LLM call was in flight is never
// overridden; the dispatcher's copy of the row is stale by then.
func (d *Dispatcher) applyConversationUpdate(ctx context.Context, conv *models.Conversation, in InboundMessage, analysis *Analysis) {
	// Tag merge is a set union, so it commutes and is always safe to apply,
	// as is the lead link created by this very dispatch.
	fields := map[string]interface{}{}
	if conv.MergeTags(analysis.Tags) {
		fields["tags"] = conv.Tags
	}
	if conv.LeadID != nil {
		fields["lead_id"] = *conv.LeadID
		fields["contact_type"] = conv.ContactType
	}
	if len(fields) > 0 {
		if err := d.conversations.Update(ctx, conv.ID, fields); err != nil {
			d.logger.WithError(err).Warn("failed to apply conversation update")
		}
	}

	if conv.AnalyzedAt != nil && conv.AnalyzedAt.After(in.Timestamp) {
		d.logger.WithField("conversation_id", conv.ID).Info("skipping stale analysis update")
		return
	}

	newStatus := models.ConversationAIServed
	switch {
	case analysis.RequerHumano:
		newStatus = models.ConversationTransferred
	case conv.Status == models.ConversationInHumanService:
		newStatus = models.ConversationInHumanService
	}
	conv.Status = newStatus
	state := map[string]interface{}{
		"status":   newStatus,
		"priority": priorityFromUrgency(analysis.Urgencia),
	}

	collected := analysis.InformacoesColetadas
	if collected.Nome != nil && *collected.Nome != "" {
		conv.ContactName = *collected.Nome
		state["contact_name"] = *collected.Nome
	}
	if collected.Telefone != nil && *collected.Telefone != "" {
		conv.ContactPhone = onlyDigits(*collected.Telefone)
		state["contact_phone"] = conv.ContactPhone
	}
	if collected.Email != nil && checkmail.ValidateFormat(*collected.Email) == nil {
		conv.ContactEmail = *collected.Email
		state["contact_email"] = *collected.Email
	}

	snapshot, _ := json.Marshal(analysis)
	analyzedAt := in.Timestamp
	conv.AnalyzedAt = &analyzedAt
	state["last_intent"] = analysis.IntencaoIdentificada
	state["last_confidence"] = analysis.NivelConfiancaIntencao
	state["last_analysis"] = string(snapshot)
	state["analyzed_at"] = analyzedAt

	if err := d.conversations.UpdateOpen(ctx, conv.ID, state); err != nil {
		d.logger.WithError(err).Warn("failed to apply conversation state update")
	}
}

func priorityFromUrgency(urgency string) string {
	switch urgency {
	case UrgencyUrgent:
		return models.PriorityUrgent
	case UrgencyHigh:
		return models.PriorityHigh
	case UrgencyLow:
		return models.PriorityLow
	}
	return models.PriorityNormal
}

func contactLabel(conv *models.Conversation) string {
	if conv.ContactName != "" {
		return conv.ContactName
	}
	return conv.ExternalContactID
}
