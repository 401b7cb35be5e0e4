// Package execution holds the per-invocation data an agent run operates on.
package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TriggerType says what started a run.
type TriggerType string

const (
	TriggerChatMessage TriggerType = "chat_message"
	TriggerEvent       TriggerType = "event"
	TriggerScheduled   TriggerType = "scheduled"
)

// Role of a prior conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MessageKey is the payload key carrying the text of a chat_message trigger.
const MessageKey = "message"

var (
	ErrMissingScope   = errors.New("scope id is required")
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// Context is created per invocation and is read-only while a run is in progress.
// It is never stored on its own; a Decision embeds a copy.
type Context struct {
	ScopeID             string         `json:"scope_id"`
	TriggerType         TriggerType    `json:"trigger_type"`
	TriggerPayload      map[string]any `json:"trigger_payload,omitempty"`
	ConversationHistory []Turn         `json:"conversation_history,omitempty"`
	ActorID             string         `json:"actor_id,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// NewChatMessage builds a context for a chat message trigger.
func NewChatMessage(scopeID, actorID, message string, history []Turn) Context {
	return Context{
		ScopeID:             scopeID,
		TriggerType:         TriggerChatMessage,
		TriggerPayload:      map[string]any{MessageKey: message},
		ConversationHistory: history,
		ActorID:             actorID,
	}
}

// Validate checks the context before a run starts.
func (c Context) Validate() error {
	if strings.TrimSpace(c.ScopeID) == "" {
		return ErrMissingScope
	}
	switch c.TriggerType {
	case TriggerChatMessage:
		if c.Message() == "" {
			return fmt.Errorf("%w: chat_message requires a non-empty %q payload", ErrInvalidTrigger, MessageKey)
		}
	case TriggerEvent, TriggerScheduled:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, c.TriggerType)
	}
	for i, t := range c.ConversationHistory {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: history turn %d has role %q", ErrInvalidTrigger, i, t.Role)
		}
	}
	return nil
}

// Message returns the chat text of the trigger payload, if any.
func (c Context) Message() string {
	s, _ := c.TriggerPayload[MessageKey].(string)
	return s
}

// FirstTurn synthesizes the user turn that opens the run.
// For chat messages it is the message text. For events and schedules it is a
// structured description of the trigger.
func (c Context) FirstTurn() string {
	if c.TriggerType == TriggerChatMessage {
		return c.Message()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trigger: %s\n", c.TriggerType)
	fmt.Fprintf(&b, "Scope: %s\n", c.ScopeID)
	if name, ok := c.TriggerPayload["name"].(string); ok && name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	if len(c.TriggerPayload) > 0 {
		payload, err := json.MarshalIndent(c.TriggerPayload, "", "  ")
		if err != nil {
			payload = []byte(fmt.Sprintf("%v", c.TriggerPayload))
		}
		fmt.Fprintf(&b, "Payload:\n%s\n", payload)
	}
	return strings.TrimRight(b.String(), "\n")
}
