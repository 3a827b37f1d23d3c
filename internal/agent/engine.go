package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/mohitpaddhariya/mcp-chat-client/internal/mcp"
)

// fallbackResponse is returned when the reasoning loop finishes without a
// final assistant message. Degraded but not an error.
const fallbackResponse = "No response generated."

// TokenChunk is one element of a completion token stream. A non-nil Err is
// terminal; the channel closes after it.
type TokenChunk struct {
	Content string
	Err     error
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ModelTurn is the model's answer to one tool-calling completion request.
type ModelTurn struct {
	Content   string
	ToolCalls []ToolCall
}

// CompletionEngine is the language-model capability consumed by the
// orchestrator.
type CompletionEngine interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	CompleteWithTools(ctx context.Context, messages []Message, tools []mcp.ToolDescriptor) (*ModelTurn, error)
	StreamTokens(ctx context.Context, messages []Message) (<-chan TokenChunk, error)
}

// ToolSession is the live tool capability for one turn.
type ToolSession interface {
	Tools() []mcp.ToolDescriptor
	ServerNames() []string
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close()
}

// SessionLauncher starts tool-server sessions.
type SessionLauncher interface {
	Launch(ctx context.Context, specs map[mcp.ServerType]mcp.ServerSpec) (ToolSession, error)
}

// RunResult is the outcome of one blocking turn.
type RunResult struct {
	Response  string
	ToolsUsed []string
}

// turnEngine is the per-turn execution strategy, selected once after tool
// discovery: completion-only when no tools are live, tool-augmented otherwise.
type turnEngine interface {
	Run(ctx context.Context, conv []Message) (*RunResult, error)
	// Stream drives the turn and pushes wire events through emit. It always
	// finishes with exactly one done or error event unless emit reports the
	// consumer is gone. Emit returns false once the consumer stopped reading.
	Stream(ctx context.Context, conv []Message, emit func(StreamEvent) bool)
}

// noToolEngine answers with a plain completion.
type noToolEngine struct {
	llm    CompletionEngine
	logger *zap.Logger
}

func (e *noToolEngine) Run(ctx context.Context, conv []Message) (*RunResult, error) {
	text, err := e.llm.Complete(ctx, conv)
	if err != nil {
		return nil, err
	}
	return &RunResult{Response: text, ToolsUsed: []string{}}, nil
}

func (e *noToolEngine) Stream(ctx context.Context, conv []Message, emit func(StreamEvent) bool) {
	mapper := newEventMapper(0)

	chunks, err := e.llm.StreamTokens(ctx, conv)
	if err != nil {
		emit(NewErrorEvent(err.Error()))
		return
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			e.logger.Error("Token stream failed", zap.Error(chunk.Err))
			emit(NewErrorEvent(chunk.Err.Error()))
			return
		}
		if chunk.Content == "" {
			continue
		}
		if !emit(NewTokenEvent(chunk.Content)) {
			return
		}
	}
	emit(mapper.done())
}

// toolEngine drives the tool-augmented reasoning loop.
type toolEngine struct {
	llm         CompletionEngine
	session     ToolSession
	maxTurns    int
	outputLimit int
	logger      *zap.Logger
}

func (e *toolEngine) Run(ctx context.Context, conv []Message) (*RunResult, error) {
	var toolsUsed []string
	collect := func(ev loopEvent) bool {
		if ev.kind == loopEventToolStart {
			toolsUsed = append(toolsUsed, ev.tool)
		}
		return true
	}

	trace, err := runToolLoop(ctx, e.llm, e.session, conv, e.maxTurns, e.logger, collect)
	if err != nil {
		return nil, err
	}
	if toolsUsed == nil {
		toolsUsed = []string{}
	}

	return &RunResult{
		Response:  finalAssistantText(trace),
		ToolsUsed: toolsUsed,
	}, nil
}

func (e *toolEngine) Stream(ctx context.Context, conv []Message, emit func(StreamEvent) bool) {
	mapper := newEventMapper(e.outputLimit)

	forward := func(ev loopEvent) bool {
		switch ev.kind {
		case loopEventText:
			return emit(NewTokenEvent(ev.text))
		case loopEventToolStart:
			return emit(mapper.toolStart(ev.tool, ev.input))
		case loopEventToolEnd:
			return emit(mapper.toolEnd(ev.tool, ev.output))
		}
		return true
	}

	if _, err := runToolLoop(ctx, e.llm, e.session, conv, e.maxTurns, e.logger, forward); err != nil {
		emit(NewErrorEvent(err.Error()))
		return
	}
	emit(mapper.done())
}

// finalAssistantText extracts the last assistant message from the loop trace,
// falling back to the fixed marker when the trace holds none.
func finalAssistantText(trace []Message) string {
	for i := len(trace) - 1; i >= 0; i-- {
		if trace[i].Role == RoleAssistant && trace[i].Content != "" {
			return trace[i].Content
		}
	}
	return fallbackResponse
}
