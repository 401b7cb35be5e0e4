package provider

import (
	"strings"

	"github.com/Cyclone1070/propagent/internal/tool"
)

// Role of a message in the model conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates content blocks.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ToolUse is a tool call requested by the model.
type ToolUse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ToolResult answers a ToolUse with the same ID.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Output    any    `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IsError reports whether the tool call failed.
func (r ToolResult) IsError() bool {
	return r.Error != ""
}

// Block is one piece of message content. Exactly one of Text, ToolUse or
// ToolResult is meaningful, as selected by Type.
type Block struct {
	Type       BlockType   `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, input map[string]any) Block {
	return Block{Type: BlockToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

func ToolResultBlock(r ToolResult) Block {
	return Block{Type: BlockToolResult, ToolResult: &r}
}

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// UserText builds a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Blocks: []Block{TextBlock(text)}}
}

// AssistantText builds a plain assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Blocks: []Block{TextBlock(text)}}
}

// Request is everything sent to the model for one call.
type Request struct {
	Model        string
	SystemPrompt string
	Tools        []tool.Declaration
	Messages     []Message
	Temperature  *float64
	MaxTokens    int
}

// StopReason says why the model stopped producing output.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Usage counts tokens for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Response is the model's answer to one Request.
type Response struct {
	Blocks     []Block
	StopReason StopReason
	Usage      Usage
	Model      string
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	var b strings.Builder
	for _, blk := range r.Blocks {
		if blk.Type == BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// ToolUses returns the requested tool calls, in response order.
func (r *Response) ToolUses() []ToolUse {
	var out []ToolUse
	for _, blk := range r.Blocks {
		if blk.Type == BlockToolUse && blk.ToolUse != nil {
			out = append(out, *blk.ToolUse)
		}
	}
	return out
}
