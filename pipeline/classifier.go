package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"terracrm/models"
)

// Proactive actions the classifier may recommend.
const (
	ActionNone              = "nenhuma"
	ActionCreateLead        = "criar_lead"
	ActionScheduleVisit     = "agendar_visita"
	ActionSendProposal      = "enviar_proposta"
	ActionSimulateFinancing = "simular_financiamento"
	ActionTransferHuman     = "transferir_humano"
)

// Urgency levels reported by the classifier.
const (
	UrgencyLow    = "baixa"
	UrgencyMedium = "media"
	UrgencyHigh   = "alta"
	UrgencyUrgent = "urgente"
)

// maxCurrentMessages bounds how much of the ongoing conversation enters the
// prompt, oldest-first.
const maxCurrentMessages = 20

// Collected holds the contact data the model extracted from the dialogue.
// All fields are nullable: absent means "not stated yet".
type Collected struct {
	Nome                *string  `json:"nome"`
	Telefone            *string  `json:"telefone"`
	Email               *string  `json:"email"`
	Interesse           *string  `json:"interesse"`
	Orcamento           *float64 `json:"orcamento"`
	LocalizacaoDesejada *string  `json:"localizacao_desejada"`
	Prazo               *string  `json:"prazo"`
	DataVisita          *string  `json:"data_visita"`
	HoraVisita          *string  `json:"hora_visita"`
}

// Behavior is the model's read of the contact's buying posture.
type Behavior struct {
	Perfil                 string   `json:"perfil"`
	ProbabilidadeConversao int      `json:"probabilidade_conversao" validate:"min=0,max=100"`
	Objecoes               []string `json:"objecoes"`
	GatilhosInteresse      []string `json:"gatilhos_interesse"`
}

// Analysis is the classifier's structured output, validated against this
// schema before any action is dispatched.
type Analysis struct {
	Resposta               string    `json:"resposta" validate:"required"`
	IntencaoIdentificada   string    `json:"intencao_identificada" validate:"required"`
	NivelConfiancaIntencao int       `json:"nivel_confianca_intencao" validate:"min=0,max=100"`
	AcaoProativaSugerida   string    `json:"acao_proativa_sugerida" validate:"required,oneof=nenhuma criar_lead agendar_visita enviar_proposta simular_financiamento transferir_humano"`
	Urgencia               string    `json:"urgencia" validate:"required,oneof=baixa media alta urgente"`
	InformacoesColetadas   Collected `json:"informacoes_coletadas"`
	AnaliseComportamental  Behavior  `json:"analise_comportamental"`
	ProximosPassos         string    `json:"proximos_passos"`
	RequerHumano           bool      `json:"requer_humano"`
	MotivoTransferencia    string    `json:"motivo_transferencia"`
	Tags                   []string  `json:"tags"`
}

// Classifier builds the prompt, invokes the LLM collaborator and validates
// the structured response. A failure here aborts only the AI continuation;
// the inbound message is already durably recorded by then.
type Classifier struct {
	llm      Invoker
	messages MessageRepository
	logger   *logrus.Entry
}

func NewClassifier(llm Invoker, messages MessageRepository, logger *logrus.Entry) *Classifier {
	return &Classifier{llm: llm, messages: messages, logger: logger}
}

const systemPrompt = `Você é a assistente virtual de uma loteadora. Analise a conversa e responda EXCLUSIVAMENTE com um objeto JSON válido, sem texto adicional, no seguinte formato:
{
  "resposta": "texto da resposta ao contato",
  "intencao_identificada": "ex: interesse_compra, duvida_pagamento, reclamacao, outro",
  "nivel_confianca_intencao": 0-100,
  "acao_proativa_sugerida": "nenhuma | criar_lead | agendar_visita | enviar_proposta | simular_financiamento | transferir_humano",
  "urgencia": "baixa | media | alta | urgente",
  "informacoes_coletadas": {
    "nome": null, "telefone": null, "email": null, "interesse": null,
    "orcamento": null, "localizacao_desejada": null, "prazo": null,
    "data_visita": null, "hora_visita": null
  },
  "analise_comportamental": {
    "perfil": "ex: decidido, pesquisador, indeciso",
    "probabilidade_conversao": 0-100,
    "objecoes": [],
    "gatilhos_interesse": []
  },
  "proximos_passos": "texto livre",
  "requer_humano": false,
  "motivo_transferencia": "",
  "tags": []
}
Campos não identificados devem ser null. Use data_visita no formato AAAA-MM-DD e hora_visita no formato HH:MM.`

// Classify runs the LLM over the aggregated context plus the current
// conversation tail and the triggering message.
func (c *Classifier) Classify(ctx context.Context, conv *models.Conversation, crmContext string, trigger InboundMessage) (*Analysis, error) {
	prompt, err := c.buildPrompt(ctx, conv, crmContext, trigger)
	if err != nil {
		return nil, stageErr(KindClassification, err)
	}

	raw, err := c.llm.Invoke(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, stageErr(KindClassification, err)
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return nil, stageErr(KindClassification, err)
	}

	c.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"intent":          analysis.IntencaoIdentificada,
		"confidence":      analysis.NivelConfiancaIntencao,
		"action":          analysis.AcaoProativaSugerida,
	}).Info("message classified")

	return analysis, nil
}

func (c *Classifier) buildPrompt(ctx context.Context, conv *models.Conversation, crmContext string, trigger InboundMessage) (string, error) {
	var b strings.Builder
	b.WriteString(crmContext)

	b.WriteString("\n\n=== CONVERSA ATUAL ===\n")
	msgs, err := c.messages.ListRecent(ctx, conv.ID, maxCurrentMessages)
	if err != nil {
		return "", fmt.Errorf("load current conversation: %w", err)
	}
	// ListRecent returns newest-first; the prompt wants oldest-first.
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", msgs[i].SenderKind, msgs[i].Content)
	}

	b.WriteString("\n=== MENSAGEM RECEBIDA ===\n")
	b.WriteString(trigger.Content)

	return b.String(), nil
}

var analysisValidator = validator.New()

// ParseAnalysis decodes and validates one structured classifier response.
func ParseAnalysis(raw []byte) (*Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if err := analysisValidator.Struct(analysis); err != nil {
		return nil, fmt.Errorf("invalid analysis: %w", err)
	}
	return &analysis, nil
}
