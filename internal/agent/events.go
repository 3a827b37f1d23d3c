package agent

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Wire event type tags. One SSE frame per event, tagged by type; exactly one
// done or error event terminates every stream.
const (
	EventTypeToken     = "token"
	EventTypeToolStart = "tool_start"
	EventTypeToolEnd   = "tool_end"
	EventTypeDone      = "done"
	EventTypeError     = "error"
)

// StreamEvent is one frame of the streaming wire protocol.
type StreamEvent interface {
	// Event returns the wire type tag
	Event() string
}

// TokenEvent carries one chunk of model output text.
type TokenEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (TokenEvent) Event() string { return EventTypeToken }

// ToolStartEvent announces a tool invocation. Input stays structured when it
// is JSON-serializable and is stringified otherwise.
type ToolStartEvent struct {
	Type  string      `json:"type"`
	Tool  string      `json:"tool"`
	Input interface{} `json:"input"`
}

func (ToolStartEvent) Event() string { return EventTypeToolStart }

// ToolEndEvent reports a completed tool invocation. Output is truncated to a
// configured bound; callers must not assume it is complete.
type ToolEndEvent struct {
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

func (ToolEndEvent) Event() string { return EventTypeToolEnd }

// DoneEvent terminates a successful stream with the ordered invocation list.
type DoneEvent struct {
	Type      string   `json:"type"`
	ToolsUsed []string `json:"tools_used"`
}

func (DoneEvent) Event() string { return EventTypeDone }

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ErrorEvent) Event() string { return EventTypeError }

// NewTokenEvent builds a token frame.
func NewTokenEvent(content string) TokenEvent {
	return TokenEvent{Type: EventTypeToken, Content: content}
}

// NewErrorEvent builds a terminal error frame.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Message: message}
}

// eventMapper normalizes reasoning-loop events into wire frames and records
// the running invocation list in tool_start observation order.
type eventMapper struct {
	outputLimit int
	toolsUsed   []string
}

func newEventMapper(outputLimit int) *eventMapper {
	return &eventMapper{outputLimit: outputLimit}
}

func (m *eventMapper) toolStart(tool string, input map[string]interface{}) ToolStartEvent {
	m.toolsUsed = append(m.toolsUsed, tool)
	return ToolStartEvent{Type: EventTypeToolStart, Tool: tool, Input: safeInput(input)}
}

func (m *eventMapper) toolEnd(tool, output string) ToolEndEvent {
	return ToolEndEvent{Type: EventTypeToolEnd, Tool: tool, Output: truncate(output, m.outputLimit)}
}

func (m *eventMapper) done() DoneEvent {
	used := m.toolsUsed
	if used == nil {
		used = []string{}
	}
	return DoneEvent{Type: EventTypeDone, ToolsUsed: used}
}

// safeInput keeps tool input structured when it survives JSON encoding and
// falls back to its string form when it does not.
func safeInput(input interface{}) interface{} {
	if input == nil {
		return map[string]interface{}{}
	}
	if _, err := json.Marshal(input); err != nil {
		return fmt.Sprintf("%v", input)
	}
	return input
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so the cut never leaves an invalid
	// UTF-8 tail for the JSON encoder to mangle
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
