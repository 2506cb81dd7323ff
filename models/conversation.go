package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Conversation lifecycle statuses. A conversation is "open" while in one of
// the first three; transferred_to_human and closed end the AI window.
const (
	ConversationAwaiting       = "awaiting"
	ConversationInHumanService = "in_human_service"
	ConversationAIServed       = "ai_served"
	ConversationTransferred    = "transferred_to_human"
	ConversationClosed         = "closed"
)

// Contact classification on a conversation
const (
	ContactTypeNew      = "new"
	ContactTypeCustomer = "customer"
	ContactTypeLead     = "lead"
)

// OpenStatuses are the statuses under which a conversation still accepts
// inbound messages. At most one open conversation may exist per
// (channel_id, external_contact_id).
func OpenStatuses() []string {
	return []string{ConversationAwaiting, ConversationInHumanService, ConversationAIServed}
}

// Conversation is the session aggregate for one external contact on one
// channel. Closed conversations are never resurrected; a new inbound event
// after closure opens a new conversation.
type Conversation struct {
	gorm.Model

	ChannelID uint    `gorm:"not null;index:idx_conv_channel_contact" json:"channel_id"`
	Channel   Channel `json:"channel,omitempty"`

	ExternalContactID string `gorm:"not null;index:idx_conv_channel_contact" json:"external_contact_id"`

	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`
	ContactType  string `gorm:"default:'new'" json:"contact_type"` // new, customer, lead

	// Mutually exclusive links into the CRM
	CustomerID *uint `gorm:"index" json:"customer_id,omitempty"`
	LeadID     *uint `gorm:"index" json:"lead_id,omitempty"`

	Status   string `gorm:"not null;default:'awaiting';index" json:"status"`
	Priority string `gorm:"default:'normal'" json:"priority"`

	// Tags is a JSON-encoded string array; merges use set-union semantics so
	// concurrent updates commute.
	Tags string `gorm:"type:text" json:"tags"`

	LastContactAt time.Time `gorm:"index" json:"last_contact_at"`
	Unread        bool      `gorm:"default:true" json:"unread"`

	// Snapshot of the most recent AI analysis. AnalyzedAt carries the
	// timestamp of the triggering message so stale async updates can be
	// detected and skipped.
	LastIntent     string     `json:"last_intent"`
	LastConfidence int        `json:"last_confidence"`
	LastAnalysis   string     `gorm:"type:text" json:"last_analysis"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// IsOpen reports whether the conversation still accepts inbound messages.
func (c *Conversation) IsOpen() bool {
	switch c.Status {
	case ConversationAwaiting, ConversationInHumanService, ConversationAIServed:
		return true
	}
	return false
}

// TagList decodes the stored tag set. A broken or empty column yields nil.
func (c *Conversation) TagList() []string {
	if c.Tags == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(c.Tags), &tags); err != nil {
		return nil
	}
	return tags
}

// MergeTags unions the stored tags with the suggested ones and re-encodes
// the result. Returns true when the set actually changed.
func (c *Conversation) MergeTags(suggested []string) bool {
	merged := MergeTagSets(c.TagList(), suggested)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return false
	}
	changed := string(encoded) != c.Tags
	c.Tags = string(encoded)
	return changed
}

// MergeTagSets computes the set union of two tag slices, preserving the
// order of first appearance. Union is commutative as a set, so applying two
// suggestions in either order yields the same final membership.
func MergeTagSets(existing, suggested []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(suggested))
	merged := make([]string, 0, len(existing)+len(suggested))
	for _, lists := range [][]string{existing, suggested} {
		for _, tag := range lists {
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	return merged
}
