package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"terracrm/models"
)

// Token-budget caps per context section. These bounds are deliberate: the
// classifier prompt must stay small no matter how much history a contact
// has accumulated.
const (
	maxNegotiations       = 10
	maxPortalMessages     = 10
	maxLeadActivities     = 15
	maxPriorConversations = 10
	maxPriorMessagesFetch = 15
	maxPriorMessagesShown = 5
	maxCatalogListings    = 5
)

// Placeholders used when a section cannot be assembled.
const (
	placeholderNoHistory = "Contato novo, sem histórico no CRM."
	placeholderCRMFail   = "Histórico do CRM indisponível no momento."
	placeholderConvFail  = "Conversas anteriores indisponíveis no momento."
	placeholderCatalog   = "Catálogo indisponível no momento."
)

// Aggregator assembles the bounded CRM context block fed to the classifier.
// Each of its three sections degrades to a placeholder on failure instead
// of aborting the pipeline.
type Aggregator struct {
	customers     CustomerRepository
	leads         LeadRepository
	conversations ConversationRepository
	messages      MessageRepository
	listings      ListingRepository
	logger        *logrus.Entry
}

func NewAggregator(customers CustomerRepository, leads LeadRepository, conversations ConversationRepository, messages MessageRepository, listings ListingRepository, logger *logrus.Entry) *Aggregator {
	return &Aggregator{
		customers:     customers,
		leads:         leads,
		conversations: conversations,
		messages:      messages,
		listings:      listings,
		logger:        logger,
	}
}

// BuildContext concatenates the CRM snapshot, cross-conversation history
// and catalog snapshot for one conversation.
func (a *Aggregator) BuildContext(ctx context.Context, conv *models.Conversation) string {
	var b strings.Builder

	b.WriteString("=== DADOS DO CRM ===\n")
	b.WriteString(a.section(ctx, conv, a.crmSnapshot, placeholderCRMFail))
	b.WriteString("\n\n=== CONVERSAS ANTERIORES ===\n")
	b.WriteString(a.section(ctx, conv, a.priorConversations, placeholderConvFail))
	b.WriteString("\n\n=== EMPREENDIMENTOS DISPONÍVEIS ===\n")
	b.WriteString(a.section(ctx, conv, a.catalogSnapshot, placeholderCatalog))

	return b.String()
}

// section runs one aggregation function, converting both errors and panics
// into the section's placeholder.
func (a *Aggregator) section(ctx context.Context, conv *models.Conversation, fn func(context.Context, *models.Conversation) (string, error), placeholder string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.WithField("panic", rec).Error("context section panicked")
			out = placeholder
		}
	}()

	text, err := fn(ctx, conv)
	if err != nil {
		a.logger.WithError(err).Warn("context section failed")
		return placeholder
	}
	return text
}

func (a *Aggregator) crmSnapshot(ctx context.Context, conv *models.Conversation) (string, error) {
	switch {
	case conv.CustomerID != nil:
		return a.customerSnapshot(ctx, *conv.CustomerID)
	case conv.LeadID != nil:
		return a.leadSnapshot(ctx, *conv.LeadID)
	default:
		return placeholderNoHistory, nil
	}
}

func (a *Aggregator) customerSnapshot(ctx context.Context, customerID uint) (string, error) {
	customer, err := a.customers.Get(ctx, customerID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s (telefone: %s, email: %s)\n", customer.Name, customer.Phone, customer.Email)

	negotiations, err := a.customers.Negotiations(ctx, customerID, maxNegotiations)
	if err != nil {
		return "", err
	}
	if len(negotiations) > 0 {
		b.WriteString("Negociações recentes:\n")
		for _, n := range negotiations {
			fmt.Fprintf(&b, "- status=%s valor=R$%.2f %s\n", n.Status, n.Value, n.Notes)
		}
	}

	payments, err := a.customers.Payments(ctx, customerID)
	if err != nil {
		return "", err
	}
	var pending, overdue, paid int
	for _, p := range payments {
		switch p.Status {
		case models.PaymentOverdue:
			overdue++
		case models.PaymentPaid:
			paid++
		default:
			pending++
		}
	}
	fmt.Fprintf(&b, "Pagamentos: %d pendentes, %d em atraso, %d pagos\n", pending, overdue, paid)

	units, err := a.customers.Units(ctx, customerID)
	if err != nil {
		return "", err
	}
	if len(units) > 0 {
		b.WriteString("Unidades: ")
		ids := make([]string, 0, len(units))
		for _, u := range units {
			ids = append(ids, u.Identifier)
		}
		b.WriteString(strings.Join(ids, ", "))
		b.WriteString("\n")
	}

	portal, err := a.customers.PortalMessages(ctx, customerID, maxPortalMessages)
	if err != nil {
		return "", err
	}
	if len(portal) > 0 {
		b.WriteString("Mensagens recentes do portal:\n")
		for _, m := range portal {
			fmt.Fprintf(&b, "- %s: %s\n", m.Subject, m.Content)
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Aggregator) leadSnapshot(ctx context.Context, leadID uint) (string, error) {
	lead, err := a.leads.Get(ctx, leadID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lead: %s (telefone: %s, interesse: %s, orçamento: R$%.2f)\n",
		lead.Name, lead.Phone, lead.Interest, lead.Budget)

	activities, err := a.leads.Activities(ctx, leadID, maxLeadActivities)
	if err != nil {
		return "", err
	}
	for _, act := range activities {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", act.ActivityAt.Format("02/01/2006"), act.ActivityType, act.Details)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// priorConversations gives the model continuity across distinct sessions
// with the same person: up to 10 prior conversations, first 5 of up to 15
// fetched messages each.
func (a *Aggregator) priorConversations(ctx context.Context, conv *models.Conversation) (string, error) {
	prior, err := a.conversations.ListRecentByContact(ctx, conv.ExternalContactID, conv.ID, maxPriorConversations)
	if err != nil {
		return "", err
	}
	if len(prior) == 0 {
		return "Nenhuma conversa anterior.", nil
	}

	var b strings.Builder
	for _, pc := range prior {
		fmt.Fprintf(&b, "Conversa de %s (status final: %s):\n", pc.LastContactAt.Format("02/01/2006"), pc.Status)
		msgs, merr := a.messages.ListRecent(ctx, pc.ID, maxPriorMessagesFetch)
		if merr != nil {
			return "", merr
		}
		shown := 0
		for i := len(msgs) - 1; i >= 0 && shown < maxPriorMessagesShown; i-- {
			fmt.Fprintf(&b, "- %s: %s\n", msgs[i].SenderKind, msgs[i].Content)
			shown++
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Aggregator) catalogSnapshot(ctx context.Context, _ *models.Conversation) (string, error) {
	listings, err := a.listings.ListActive(ctx, maxCatalogListings)
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return "Nenhum empreendimento ativo no momento.", nil
	}

	var b strings.Builder
	for _, l := range listings {
		fmt.Fprintf(&b, "- %s em %s: lotes de %.0f a %.0f m², a partir de R$%.2f, %d lotes disponíveis\n",
			l.Name, l.Location, l.MinLotSize, l.MaxLotSize, l.StartingPrice, l.AvailableLots)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
