package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// loopEventKind tags events produced by the reasoning loop before they are
// normalized onto the wire protocol.
type loopEventKind int

const (
	loopEventText loopEventKind = iota
	loopEventToolStart
	loopEventToolEnd
)

type loopEvent struct {
	kind   loopEventKind
	text   string
	tool   string
	input  map[string]interface{}
	output string
}

// loopEmit receives loop events in issuance order. Returning false tells the
// loop the consumer is gone; the loop stops without emitting further events.
type loopEmit func(ev loopEvent) bool

// runToolLoop repeatedly lets the model emit text or invoke tools, feeding
// tool results back as a follow-up message, until the model answers with no
// further tool calls or the turn budget runs out. Returns the full message
// trace; the error is turn-fatal (LLM failure or cancellation).
func runToolLoop(ctx context.Context, llm CompletionEngine, session ToolSession, conv []Message, maxTurns int, log *zap.Logger, emit loopEmit) ([]Message, error) {
	tools := session.Tools()
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.Name] = true
	}

	trace := append([]Message(nil), conv...)

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := llm.CompleteWithTools(ctx, trace, tools)
		if err != nil {
			return trace, err
		}

		if resp.Content != "" {
			trace = append(trace, Message{Role: RoleAssistant, Content: resp.Content})
			if !emit(loopEvent{kind: loopEventText, text: resp.Content}) {
				return trace, ctx.Err()
			}
		}

		if len(resp.ToolCalls) == 0 {
			return trace, nil
		}

		var results []string
		for _, call := range resp.ToolCalls {
			// A tool name outside the discovered set is a model fabrication;
			// refuse it locally so it never reaches a server or the invoked list
			if !known[call.Name] {
				log.Warn("Model requested unknown tool", zap.String("tool", call.Name))
				results = append(results, fmt.Sprintf("[%s] ERROR: unknown tool", call.Name))
				continue
			}

			if !emit(loopEvent{kind: loopEventToolStart, tool: call.Name, input: call.Arguments}) {
				return trace, ctx.Err()
			}

			output, err := session.CallTool(ctx, call.Name, call.Arguments)
			if err != nil {
				// Degraded: the failure is fed back to the model as output
				log.Warn("Tool execution failed",
					zap.String("tool", call.Name),
					zap.Error(err),
				)
				output = fmt.Sprintf("ERROR: %v", err)
			} else {
				log.Debug("Tool executed",
					zap.String("tool", call.Name),
					zap.Int("output_bytes", len(output)),
				)
			}

			if !emit(loopEvent{kind: loopEventToolEnd, tool: call.Name, output: output}) {
				return trace, ctx.Err()
			}
			results = append(results, fmt.Sprintf("[%s]: %s", call.Name, output))
		}

		// Feed tool results back so the next model turn can use them
		trace = append(trace, Message{
			Role: RoleUser,
			Content: fmt.Sprintf("[Tool results]:\n%s\n\nNow provide a helpful response to the user based on these results.",
				strings.Join(results, "\n")),
		})
	}

	log.Warn("Reasoning loop hit turn budget", zap.Int("max_turns", maxTurns))
	return trace, nil
}
