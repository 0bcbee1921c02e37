package model

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Intent is the classified purpose of a user message. It drives routing.
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentFAQRequest   Intent = "faq_request"
	IntentAgentRequest Intent = "agent_request"
	IntentSupportQuery Intent = "support_query"
	IntentOutOfScope   Intent = "out_of_scope"
)

// ValidIntent reports whether the label belongs to the fixed intent set.
func ValidIntent(v string) bool {
	switch Intent(v) {
	case IntentGreeting, IntentFAQRequest, IntentAgentRequest, IntentSupportQuery, IntentOutOfScope:
		return true
	default:
		return false
	}
}

// Message is a single turn record in the conversation transcript.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the state threaded through every turn of a session.
// It is owned exclusively by the engine for the duration of a turn and
// persisted through the CheckpointStore between turns.
type Conversation struct {
	SessionID     string            `json:"session_id"`
	Messages      []Message         `json:"messages"`
	CurrentIntent Intent            `json:"current_intent,omitempty"`
	UserEmail     string            `json:"user_email,omitempty"`
	AwaitingEmail bool              `json:"awaiting_email"`
	Ended         bool              `json:"conversation_ended"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// RAGContext is scratch state for the current support-query turn.
	// It is overwritten each turn and not checkpointed.
	RAGContext string `json:"-"`
}

// NewConversation creates the initial state for a session identifier.
func NewConversation(sessionID string) *Conversation {
	return &Conversation{
		SessionID: sessionID,
		Messages:  []Message{},
		Metadata:  map[string]string{},
	}
}

// Append adds a turn record to the transcript. The transcript is append-only.
func (c *Conversation) Append(role Role, text string) {
	c.Messages = append(c.Messages, Message{Role: role, Text: text, Timestamp: time.Now().UTC()})
}

// TurnResult is what the engine hands back to the transport layer after a turn.
type TurnResult struct {
	Response       string `json:"response"`
	SessionID      string `json:"session_id"`
	Intent         Intent `json:"intent,omitempty"`
	Ended          bool   `json:"conversation_ended"`
	EmailCollected bool   `json:"email_collected"`
}
