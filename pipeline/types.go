package pipeline

import (
	"fmt"
	"time"

	"terracrm/models"
)

// InboundMessage is the canonical provider-independent form of one inbound
// message, produced by normalization.
type InboundMessage struct {
	Channel           models.Channel
	ExternalContactID string
	DisplayName       string
	Content           string
	ContentType       string
	ExternalMessageID string
	Timestamp         time.Time
}

// ErrorKind classifies stage failures so callers can tell expected
// conditions apart from real errors.
type ErrorKind string

const (
	KindVerification   ErrorKind = "verification"
	KindNoValue        ErrorKind = "no_value"
	KindChannelUnknown ErrorKind = "channel_not_found"
	KindDuplicate      ErrorKind = "duplicate"
	KindLease          ErrorKind = "lease"
	KindClassification ErrorKind = "classification"
	KindPersistence    ErrorKind = "persistence"
)

// StageError carries the failing stage's error kind alongside the cause.
type StageError struct {
	Kind ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(kind ErrorKind, err error) *StageError {
	return &StageError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from an error, or empty when it is not a
// stage error.
func KindOf(err error) ErrorKind {
	if se, ok := err.(*StageError); ok {
		return se.Kind
	}
	return ""
}

// Event is pushed to the operator live feed after pipeline activity.
type Event struct {
	Type           string    `json:"type"` // message_received, conversation_updated
	ConversationID uint      `json:"conversation_id"`
	ChannelID      uint      `json:"channel_id"`
	Status         string    `json:"status,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	At             time.Time `json:"at"`
}

// Broadcaster pushes pipeline events to connected operator dashboards.
// Implementations must be safe for concurrent use and non-blocking.
type Broadcaster interface {
	Publish(event Event)
}

// NopBroadcaster discards events; used when no websocket hub is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Event) {}

// ExecutionContext is handed to the automation executor when a rule fires.
type ExecutionContext struct {
	ConversationID uint      `json:"conversation_id"`
	CustomerID     *uint     `json:"customer_id,omitempty"`
	LeadID         *uint     `json:"lead_id,omitempty"`
	ContactPhone   string    `json:"contact_phone,omitempty"`
	ContactEmail   string    `json:"contact_email,omitempty"`
	Analysis       *Analysis `json:"analysis,omitempty"`
}
