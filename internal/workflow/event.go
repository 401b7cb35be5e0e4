// Package workflow defines the events an orchestration run emits while it
// progresses.
package workflow

import "time"

// Event is the interface for all workflow events.
// Observers handle events via type switch.
type Event interface {
	isEvent()
}

// ThinkingEvent is emitted before each model call.
type ThinkingEvent struct {
	Iteration int
}

func (ThinkingEvent) isEvent() {}

// TextEvent is emitted when the LLM produces text output.
type TextEvent struct {
	Text string
}

func (TextEvent) isEvent() {}

// ToolStartEvent is emitted when a tool execution begins.
type ToolStartEvent struct {
	ToolName string
	Input    map[string]any
}

func (ToolStartEvent) isEvent() {}

// ToolEndEvent is emitted when a tool execution completes.
type ToolEndEvent struct {
	ToolName string
	Success  bool
	Error    string
	Latency  time.Duration
}

func (ToolEndEvent) isEvent() {}

// DoneEvent is emitted when the loop completes.
type DoneEvent struct {
	Reason string
}

func (DoneEvent) isEvent() {}
